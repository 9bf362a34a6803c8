// Package report renders mirror run reports and run comparisons.
//
// Writers:
//   - SimpleWriter: text for the terminal
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: GitHub Flavored Markdown
//
// Every format states the number of pages persisted.
package report
