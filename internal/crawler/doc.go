// Package crawler drives the mirror of one documentation site.
//
// # Architecture
//
// A Scheduler owns the whole crawl state: the pending queue, the visited
// set and the page budget. Each Step takes one URL from the front of the
// queue and moves it through
//
//	fetch -> classify -> rewrite -> store -> enqueue discovered links -> delay
//
// The network and the file system are reached through the Fetcher and Sink
// interfaces, implemented by the fetch and store packages.
//
// # Politeness
//
// One crawl is strictly sequential. There is never more than one request
// in flight, and the configured delay is applied after every fetch attempt
// while work remains.
//
// # Usage
//
//	s, err := crawler.NewScheduler(seed, client, sink, crawler.WithMaxPages(100))
//	if err != nil {
//		return err
//	}
//	report, err := s.Run(ctx)
package crawler
