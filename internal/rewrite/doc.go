// Package rewrite turns the hyperlinks of a fetched page into links between
// mirrored files.
//
// Every <a href> is resolved against the page URL and then handled by one of
// three policies:
//
//   - same-page anchor: the href becomes "#fragment"
//   - documentation link: the href becomes the target's canonical file name,
//     keeping any fragment
//   - out-of-scope link: the element is replaced by its text, so the reader
//     keeps the words but loses the dead link
//
// Rewrite works on a copy of the parse tree and performs no I/O, so callers can
// test it against literal HTML fragments. While rewriting it also collects the
// same-origin URLs the crawler should visit next, with fragments stripped.
//
// RewriteHTML can also relabel <meta> charset declarations as UTF-8 for
// content that was decoded before rewriting.
package rewrite
