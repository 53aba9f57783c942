package engine

// Config holds settings for the embedded analytical engine.
type Config struct {
	// MemoryLimit is passed to the engine as its memory budget (e.g. "4GB"). Empty keeps the engine default.
	MemoryLimit string `mapstructure:"memory_limit" default:""`
	// Threads caps engine worker threads. Zero keeps the engine default.
	Threads int `mapstructure:"threads" default:"0"`
	// TempDir is where the engine spills data that does not fit the memory budget.
	TempDir string `mapstructure:"temp_dir" default:""`
	// ChunkSize overrides the computed staging and comparison window size when positive.
	ChunkSize int `mapstructure:"chunk_size" default:"0"`
	// ChunkedThresholdRows is the combined row count above which "auto" comparisons run chunked.
	ChunkedThresholdRows int64 `mapstructure:"chunked_threshold_rows" default:"5000000"`
}
