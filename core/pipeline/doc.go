// Package pipeline orchestrates a reconciliation run.
//
// A run selects comparisons (optionally one named pair), stages each dataset
// they use exactly once in first-use order, validates the staged tables,
// compares every pair in full or chunked mode and writes the report
// artifacts. Lineage and phase timings are collected along the way.
//
// Failures are isolated: a dataset that cannot be staged fails only the
// comparisons that use it, and a failing comparison never stops the next one.
// Both are recorded in RunResult. Cancellation is honoured between datasets,
// comparisons and chunk windows.
package pipeline
