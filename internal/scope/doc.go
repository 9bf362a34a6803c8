// Package scope decides whether a fetched page belongs to the mirrored
// documentation.
//
// PrefixClassifier is the default and only checks that the page URL lies
// under the scope root. ContentClassifier additionally sniffs the page for
// documentation signals such as a "docs" title or a navigation sidebar.
package scope
