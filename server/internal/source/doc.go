// Package source scrapes algorithm implementations out of the remote C file
// that the compute backend is built from.
//
// The file is fetched as plain text and scanned line by line: a line shaped
// like `<type tokens> <name>(<params>) {` opens a function and the block runs
// until the `{`/`}` counter returns to zero. This is a heuristic, not a
// parser; braces inside string literals or comments and multi-line
// signatures defeat it. ParseFunctions holds the whole heuristic so it can be
// swapped for a real lexer without touching callers.
//
// Source annotation is enrichment, so every fetch or parse failure degrades
// to an empty result and a warning log line.
package source
