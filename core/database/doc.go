// Package database handles relational connections used by database-backed datasets.
//
// It wraps GORM to configure MySQL or SQLite connections from the application
// configuration and exposes a small extraction surface for the staging layer.
//
// # Connect
//
// Connect dispatches on Config.Driver ("mysql" by default, or "sqlite") and pings
// the database under the configured timeout.
//
// # Extraction
//
// QueryText streams the rows of a table or SELECT statement as text values so the
// staging layer can run them through the same normalizers as file sources.
// CountRows is used for drift detection of sources without a modification time.
//
// # Schema Inspection
//
// GetTableColumns and ColumnNames back the sources integrity check, which verifies
// that mapped and key columns exist in the configured tables.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
//
//	cols, err := database.QueryText(ctx, db, "SELECT * FROM invoices", func(row []*string) error {
//	    return nil
//	})
package database
