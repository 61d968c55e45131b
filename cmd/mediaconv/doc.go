// Package main hosts the mediaconv CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, performs one-shot
// conversions and retention sweeps through the same internal packages the
// daemon uses, inspects conversion history, tails the daemon log, and scaffolds
// configuration.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through a command or flag here.
package main
