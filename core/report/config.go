package report

// Config holds settings for comparison artifacts.
type Config struct {
	// Dir is the local output directory for CSV and JSON artifacts.
	Dir string `mapstructure:"dir" default:"reports"`
	// Upload copies artifacts to the storage bucket after they are written.
	Upload bool `mapstructure:"upload" default:"false"`
	// Prefix is prepended to uploaded object names.
	Prefix string `mapstructure:"prefix" default:"reconcile"`
}
