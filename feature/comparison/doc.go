// Package comparison exposes the reconciliation pipeline over HTTP and on a
// cron schedule.
//
// Only one run is active at a time; the scheduler started by the start
// command shares the same Service, so a cron tick during an HTTP run is skipped.
//
// # HTTP Endpoints
//
//   - GET /comparisons : Lists configured comparisons.
//   - POST /comparisons/run : Runs the pipeline (supports ?pair=, ?cutoff=YYYY-MM-DD, ?force=true).
//   - GET /comparisons/last : Returns the most recent run result.
package comparison
