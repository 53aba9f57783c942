package server

import "github.com/robfig/cron/v3"

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// Schedule is an optional cron expression for recurring reconciliation runs.
	Schedule string `mapstructure:"schedule" default:""`
}

// HasSchedule reports whether recurring runs are configured.
func (c Config) HasSchedule() bool {
	return c.Schedule != ""
}

// IsValidSchedule checks that the schedule is empty or a valid cron expression.
// Standard five-field expressions and descriptors such as @hourly are accepted.
func (c Config) IsValidSchedule() bool {
	if c.Schedule == "" {
		return true
	}
	_, err := cron.ParseStandard(c.Schedule)
	return err == nil
}
