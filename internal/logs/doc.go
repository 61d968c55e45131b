// Package logs reads the daemon's run log for the CLI.
//
// Tail returns the last lines of a file along with the byte offset reached,
// and Follow keeps polling from that offset until the context ends. Log
// rotation is handled by the daemon re-pointing mediaconv.log, so followers
// re-resolve the path when the file shrinks.
package logs
