// Package extract copies one stored ZIP member from an archive to a
// destination using several workers.
//
// Sources and destinations are given as source.Opener values so every worker
// gets handles of its own. This matches the one-operation-per-handle rule of
// the backends and lets remote workers keep separate connections.
package extract
