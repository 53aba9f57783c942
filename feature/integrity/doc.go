// Package integrity provides health checks for the reconciliation workspace.
//
// Unlike the 'comparison' feature which runs the pipeline, this package
// validates the environment a run depends on without staging anything.
//
// # Checks Provided
//
//   - Structure: Checks that the staging and report directories exist, and the report bucket when uploads are enabled.
//   - Datasets: Verifies that every file and s3:// source exists.
//   - Sources: Validates that database tables carry the key, mapped and last-modified columns a dataset refers to.
//   - Cache: Reports whether each cached canonical table is fresh or has drifted from its source.
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs all checks.
//   - GET /integrity/structure : Runs structure check (supports ?fix=true).
//   - GET /integrity/datasets : Runs source existence check.
//   - GET /integrity/sources : Runs database source column check.
//   - GET /integrity/cache : Runs staging cache check.
package integrity
