// Package lineage records where the data of a pipeline run came from and
// what happened to it: staged datasets with their fingerprints and
// transformations, comparisons with their counts, and phase timings.
package lineage
