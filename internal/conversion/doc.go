// Package conversion turns a source URL into a servable MP3 or MP4.
//
// A Pipeline runs one request end to end: it records activity, allocates a
// workspace, fetches the source with yt-dlp, transcodes it with ffmpeg,
// removes the intermediate and returns the download URL. Fetch and transcode
// failures are reported in the Result, never as a returned error. Each
// external step runs under its own timeout.
//
// A Pool bounds how many pipelines run at once.
package conversion
