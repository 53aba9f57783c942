// Package config provides configuration management for the reconciler.
//
// It utilizes Viper for loading configuration from environment variables and an
// optional .env file. Defaults come from the `default` struct tags of each section.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP server settings (port, API key, cron schedule)
//   - Database: MySQL or SQLite connection for database-backed datasets
//   - Storage: S3/MinIO credentials and the report bucket
//   - Log: Logging level and format
//   - Engine: memory budget, threads and chunking thresholds of the analytical engine
//   - Staging: cache directory and store kind
//   - Report: artifact directory and upload settings
//   - Datasets: path of the declarative datasets file
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Datasets.File)
package config
