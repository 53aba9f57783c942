package datasets

// Config locates the declarative datasets file.
type Config struct {
	// File is the path of the YAML document declaring datasets and comparisons.
	File string `mapstructure:"file" default:"datasets.yaml"`
}
