// Package pipeline runs the steps of a mirror run and batches runs over
// several seeds.
//
// A run is a Pipeline of Steps operating on one model.MirrorReport: the
// mirror step crawls the site and the record step stores the result in the
// run history. The BatchProcessor mirrors several seeds concurrently, each
// seed with its own pipeline, scheduler and output directory, while every
// single crawl stays sequential.
package pipeline
