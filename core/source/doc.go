// Package source reads raw dataset sources into the analytical engine.
//
// Every reader materializes its source as an all-VARCHAR engine table so that
// normalization and type coercion happen in one place (core/staging), whatever
// the physical format. Readers also produce a Fingerprint (column names,
// modification time, row count) that the staging cache uses to detect drift.
//
// Supported sources:
//   - local CSV (Windows-1252 and UTF-16 input is transcoded first), Parquet, Excel, JSON
//   - s3:// objects, downloaded through core/storage
//   - relational tables or queries, extracted through core/database
package source
