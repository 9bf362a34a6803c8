// Package model defines the data structures shared by the crawler, the
// report writers and the run history database.
//
// The main types are:
//   - Document: a fetched page as returned by the fetch gateway
//   - PageRecord: the outcome of processing one URL
//   - MirrorReport: the result of one mirror run
//   - Comparison: the difference between two recorded runs
//
// All types serialize to JSON for report output and database storage.
package model
