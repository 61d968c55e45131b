// Package server exposes the conversion API over HTTP.
//
// Routes:
//
//	GET /                       service banner
//	GET /convert/audio?url=...  convert to MP3
//	GET /convert/video?url=...  convert to MP4
//	GET /downloads/{name}       download a finished output as an attachment
//	GET /api/status             daemon status
//	GET /api/conversions        recent conversion history
//
// Conversion routes block until the pool returns a result. Failures are
// reported as {"error": "..."} with status 500; missing downloads as 404.
package server
