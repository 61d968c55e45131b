// Package history records every conversion the daemon runs.
//
// The store is backed by SQLite by default and by Postgres when a DSN is
// configured. Rows carry the source URL, the produced file name, the display
// title used for downloads, and the terminal status. The retention sweeper
// marks rows expired once their output file is removed.
package history
