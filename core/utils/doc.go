// Package utils provides common utility functions for the data-reconciler application.
// It includes helpers for converting loosely typed driver values (database/sql scans
// into any) to int64, string, and bool, and for rendering dates consistently.
package utils
