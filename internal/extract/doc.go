// Package extract turns a parsed stock page into a stock.Snapshot.
//
// Extraction is pure: it walks a Node tree and never performs I/O. Every
// structural absence (grid, sections, list, countdown) is an explicit outcome
// rather than a panic, and only the grid and section checks, plus the final
// all-empty check, are failures. The Node capability is backed by goquery in
// production; tests may supply any implementation.
package extract
