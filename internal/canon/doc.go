// Package canon maps documentation URLs to scope decisions and to the flat,
// deterministic file names used by the mirror.
//
// A Canonicalizer is built once from the seed URL. It fixes two values for the
// lifetime of a crawl:
//
//   - the site origin (scheme://host[:port]), used for same-site checks
//   - the scope root, the seed with its final path segment removed
//
// A URL is in scope when, with its fragment removed, it starts with the scope
// root. Filename turns any URL into a file name ending in ".html" that contains
// no path separators or other characters that are unsafe on common file
// systems. Distinct URLs may share a file name (for example "/docs/a" and
// "/docs/a/"); such collisions are expected and the later write wins.
//
// # Usage
//
//	c, err := canon.New("http://127.0.0.1:48626/hom/hou/index.html")
//	if err != nil {
//		return err
//	}
//	c.ClassifyScope("http://127.0.0.1:48626/hom/hou/nodes.html") // canon.InScope
//	c.Filename("http://127.0.0.1:48626/hom/hou/nodes.html")      // "hom_hou_nodes.html"
package canon
