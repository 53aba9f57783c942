package staging

// Config holds settings for the staging cache.
type Config struct {
	// Dir is where canonical snapshots and their metadata are kept.
	Dir string `mapstructure:"dir" default:".staging"`
	// Cache selects the cache store: "file" persists across runs, "memory" lives for one process.
	Cache string `mapstructure:"cache" default:"file"`
}
