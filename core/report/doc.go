// Package report exports comparison results as artifacts.
//
// For a comparison named N between datasets L and R the writer produces
// N__only_in_L.csv, N__only_in_R.csv, N__value_differences.csv and a
// consolidated N__report.json holding counts, rates, the presence and
// difference rows, validation summaries and the lineage block. Artifacts are
// optionally uploaded to object storage under <prefix>/<run id>/.
package report
