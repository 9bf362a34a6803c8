// Package database provides the SQLite run history of docmirror.
//
// MirrorDB records every mirror run together with the outcome and content
// hash of each processed URL, so that later runs of the same seed can be
// compared. It uses modernc.org/sqlite, a CGO-free driver, and keeps a
// single database file under the XDG data directory.
package database
