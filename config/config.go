package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/meigma/rangezip/extract"
	"github.com/meigma/rangezip/internal/sizing"
	rangehttp "github.com/meigma/rangezip/source/http"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "RANGEZIP_"

// errSizeOverflow is returned when a parsed size does not fit in an int64.
var errSizeOverflow = errors.New("config: size overflows int64")

// Config holds the settings for opening an archive and extracting an entry.
type Config struct {
	// Location is a local path or an http(s) URL of the archive.
	Location string
	// Entry is the member to extract.
	Entry string
	// Output is the destination path.
	Output string

	Workers     int
	ChunkSize   int64
	MaxBuffered int64
	NoSparse    bool

	// Headers are added to every remote request.
	Headers map[string]string
	// ReadChunkSize is the response body copy step of remote reads.
	ReadChunkSize int64

	Retry RetryConfig
}

// RetryConfig controls retries of remote reads.
type RetryConfig struct {
	Attempts       int
	Backoff        time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// Default returns a Config with the library defaults.
func Default() Config {
	return Config{
		Entry:         "payload.bin",
		Workers:       extract.DefaultWorkers,
		ChunkSize:     extract.DefaultChunkSize,
		ReadChunkSize: rangehttp.DefaultChunkSize,
		Retry: RetryConfig{
			Attempts:   rangehttp.DefaultMaxAttempts,
			Backoff:    200 * time.Millisecond,
			MaxBackoff: 10 * time.Second,
		},
	}
}

// yamlConfig mirrors Config with human-readable sizes and durations.
type yamlConfig struct {
	Location      string            `yaml:"location"`
	Entry         string            `yaml:"entry"`
	Output        string            `yaml:"output"`
	Workers       int               `yaml:"workers"`
	ChunkSize     string            `yaml:"chunk_size"`
	MaxBuffered   string            `yaml:"max_buffered"`
	NoSparse      bool              `yaml:"no_sparse"`
	Headers       map[string]string `yaml:"headers"`
	ReadChunkSize string            `yaml:"read_chunk_size"`
	Retry         yamlRetryConfig   `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts       int    `yaml:"attempts"`
	Backoff        string `yaml:"backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
	AttemptTimeout string `yaml:"attempt_timeout"`
}

// LoadFromFile reads a YAML file and applies it over Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	override := Config{
		Location: yc.Location,
		Entry:    yc.Entry,
		Output:   yc.Output,
		Workers:  yc.Workers,
		NoSparse: yc.NoSparse,
		Headers:  yc.Headers,
		Retry:    RetryConfig{Attempts: yc.Retry.Attempts},
	}
	sizes := []struct {
		field string
		value string
		dst   *int64
	}{
		{"chunk_size", yc.ChunkSize, &override.ChunkSize},
		{"max_buffered", yc.MaxBuffered, &override.MaxBuffered},
		{"read_chunk_size", yc.ReadChunkSize, &override.ReadChunkSize},
	}
	for _, s := range sizes {
		if s.value == "" {
			continue
		}
		if *s.dst, err = parseSize(s.value); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", s.field, err)
		}
	}
	durations := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"retry.backoff", yc.Retry.Backoff, &override.Retry.Backoff},
		{"retry.max_backoff", yc.Retry.MaxBackoff, &override.Retry.MaxBackoff},
		{"retry.attempt_timeout", yc.Retry.AttemptTimeout, &override.Retry.AttemptTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		if *d.dst, err = time.ParseDuration(d.value); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.field, err)
		}
	}

	return Default().Merge(override), nil
}

// LoadFromEnv applies RANGEZIP_* environment variables to c.
//
// RANGEZIP_HEADERS holds comma-separated "Key: Value" pairs.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvPrefix + "LOCATION"); v != "" {
		c.Location = v
	}
	if v := os.Getenv(EnvPrefix + "ENTRY"); v != "" {
		c.Entry = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sWORKERS: %w", EnvPrefix, err)
		}
		c.Workers = n
	}
	if v := os.Getenv(EnvPrefix + "NO_SPARSE"); v != "" {
		c.NoSparse = v == "true" || v == "1"
	}

	sizes := []struct {
		name string
		dst  *int64
	}{
		{"CHUNK_SIZE", &c.ChunkSize},
		{"MAX_BUFFERED", &c.MaxBuffered},
		{"READ_CHUNK_SIZE", &c.ReadChunkSize},
	}
	for _, s := range sizes {
		v := os.Getenv(EnvPrefix + s.name)
		if v == "" {
			continue
		}
		n, err := parseSize(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, s.name, err)
		}
		*s.dst = n
	}

	if v := os.Getenv(EnvPrefix + "RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sRETRY_ATTEMPTS: %w", EnvPrefix, err)
		}
		c.Retry.Attempts = n
	}
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"RETRY_BACKOFF", &c.Retry.Backoff},
		{"RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff},
		{"RETRY_ATTEMPT_TIMEOUT", &c.Retry.AttemptTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(EnvPrefix + d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, d.name, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv(EnvPrefix + "HEADERS"); v != "" {
		headers, err := parseHeaders(v)
		if err != nil {
			return fmt.Errorf("parse %sHEADERS: %w", EnvPrefix, err)
		}
		c.Headers = headers
	}
	return nil
}

// Validate checks that the configuration can drive an extraction.
func (c *Config) Validate() error {
	if c.Location == "" {
		return errors.New("config: location is required")
	}
	if c.Entry == "" {
		return errors.New("config: entry is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if !sizing.FitsInt(c.ChunkSize) {
		return errors.New("config: chunk_size out of range")
	}
	if c.MaxBuffered < 0 {
		return errors.New("config: max_buffered must not be negative")
	}
	if !sizing.FitsInt(c.ReadChunkSize) {
		return errors.New("config: read_chunk_size out of range")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 || c.Retry.AttemptTimeout < 0 {
		return errors.New("config: retry durations must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Location != "" {
		c.Location = override.Location
	}
	if override.Entry != "" {
		c.Entry = override.Entry
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.MaxBuffered != 0 {
		c.MaxBuffered = override.MaxBuffered
	}
	if override.NoSparse {
		c.NoSparse = true
	}
	if len(override.Headers) > 0 {
		merged := make(map[string]string, len(c.Headers)+len(override.Headers))
		for k, v := range c.Headers {
			merged[k] = v
		}
		for k, v := range override.Headers {
			merged[k] = v
		}
		c.Headers = merged
	}
	if override.ReadChunkSize != 0 {
		c.ReadChunkSize = override.ReadChunkSize
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Retry.AttemptTimeout != 0 {
		c.Retry.AttemptTimeout = override.Retry.AttemptTimeout
	}
	return c
}

// HTTPOptions returns the remote source options described by c.
// Call Validate first.
func (c *Config) HTTPOptions() []rangehttp.Option {
	opts := []rangehttp.Option{
		rangehttp.WithMaxAttempts(c.Retry.Attempts),
		rangehttp.WithChunkSize(int(c.ReadChunkSize)),
		rangehttp.WithAttemptTimeout(c.Retry.AttemptTimeout),
	}
	initial, maxInterval := c.Retry.Backoff, c.Retry.MaxBackoff
	opts = append(opts, rangehttp.WithBackOff(func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		if maxInterval > 0 {
			b.MaxInterval = maxInterval
		}
		b.MaxElapsedTime = 0
		return b
	}))
	for k, v := range c.Headers {
		opts = append(opts, rangehttp.WithHeader(k, v))
	}
	return opts
}

// ExtractOptions returns the extraction options described by c.
// Call Validate first.
func (c *Config) ExtractOptions() []extract.Option {
	return []extract.Option{
		extract.WithWorkers(c.Workers),
		extract.WithChunkSize(int(c.ChunkSize)),
		extract.WithMaxBuffered(c.MaxBuffered),
		extract.WithSparse(!c.NoSparse),
	}
}

// parseSize parses a human-readable size such as "4MiB" or "512kB".
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return sizing.ToInt64(n, errSizeOverflow)
}

// parseHeaders parses comma-separated "Key: Value" pairs.
func parseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	for pair := range strings.SplitSeq(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("header %q: want \"Key: Value\"", pair)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}
