// Package config loads extraction settings from YAML files and RANGEZIP_*
// environment variables and turns them into source and extract options.
//
// Sizes accept human-readable forms such as "4MiB" or "512kB". Durations use
// time.ParseDuration syntax.
package config
