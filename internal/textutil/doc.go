// Package textutil provides title and filename sanitization helpers.
//
// SanitizeTitle makes fetcher-supplied titles safe for use as a filename
// component; ASCIIFileName derives a header-safe download name from a title.
package textutil
