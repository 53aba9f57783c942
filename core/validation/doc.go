// Package validation runs advisory checks over staged canonical tables.
//
// The default pipeline runs schema, type_sanity, keys and duplicates checks in
// that order and merges their findings into one Report per dataset. Checks are
// independent; with FailFast the pipeline stops after the first check that
// reports an ERROR and later checks are simply not run.
//
// Validation never blocks a comparison by itself. The pipeline records reports
// and leaves the decision to the caller.
package validation
