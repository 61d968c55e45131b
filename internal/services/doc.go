// Package services defines shared utilities consumed by the conversion
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp conversion IDs, pipeline stages, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so fetch, transcode, and
//     configuration failures can be classified with errors.Is at the HTTP
//     boundary and in history records.
//
// Adapters for the external tools live in subpackages (ytdlp, ffmpeg,
// s3mirror).
package services
