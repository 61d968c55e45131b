// Package daemon coordinates the long-running mediaconv process.
//
// It wires configuration, the output workspace, the conversion pool, the
// history store, the optional Redis cache and S3 mirror, the HTTP server, the
// retention sweeper, and the keep-alive pinger into a single lifecycle with
// flock-based locking to prevent multiple instances sharing one data
// directory.
//
// Keep orchestration here: conversion steps live in internal/conversion and
// the HTTP surface in internal/server, while the daemon focuses on startup,
// shutdown, and status reporting.
package daemon
