// Package engine wraps the embedded DuckDB analytical engine.
//
// A Session is an in-memory database with one connection. Staged canonical tables,
// comparison result relations and raw source loads all live in it for the duration
// of a pipeline run. Set operations (anti joins, semi joins, grouping) are expressed
// as SQL and executed by the engine; Go code only orchestrates them.
//
// Bulk inserts go through the engine appender (AppendRows), and artifacts are
// written with COPY (CopyTo).
package engine
