// Package main provides the entry point for the docmirror CLI.
//
// docmirror mirrors a documentation site into a flat directory of HTML files
// whose links point at each other, so the documentation can be read
// offline.
//
// Usage:
//
//	docmirror mirror <seed-url>
//	docmirror mirror --output ./docs --max-pages 50 <seed-url>
//	docmirror compare <seed-url>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
