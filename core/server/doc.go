// Package server holds the HTTP server configuration.
//
// While the main application entry point handles the server startup, this package
// defines the configuration structures and valid values for server settings.
//
// # Configuration
//
// The Config struct defines the HTTP port, the API key, and an optional cron
// schedule that triggers recurring reconciliation runs while the server is up.
//
// # Usage
//
// This package is primarily used by the core/config package to embed server settings
// and by the start command to validate the schedule before registering it.
package server
