package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// CLI configuration struct
// --------------------------------------------------------------------------

// Config holds everything needed to open a store from the command line
type Config struct {
	// Storage
	Engine  string
	DataDir string
	DB      string
	Codec   string

	// Timeout bounds every command
	Timeout time.Duration

	// Open sequence and readiness gate
	OpenAttempts      int
	OpenRetryDelay    time.Duration
	ReadyPollAttempts int
	ReadyPollInterval time.Duration

	// Logging configuration
	LogLevel  string
	LogFormat string

	// print metrics after each command
	Metrics bool
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Storage")
	addField("Engine", c.Engine)
	if c.Engine != "memory" {
		addField("Data Directory", c.DataDir)
	}
	addField("Database", c.DB)
	addField("Codec", c.Codec)

	addSection("Open")
	addField("Timeout", c.Timeout.String())
	addField("Open Attempts", strconv.Itoa(c.OpenAttempts))
	addField("Open Retry Delay", c.OpenRetryDelay.String())
	addField("Ready Poll Attempts", strconv.Itoa(c.ReadyPollAttempts))
	addField("Ready Poll Interval", c.ReadyPollInterval.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Log Format", c.LogFormat)
	addField("Metrics", strconv.FormatBool(c.Metrics))

	return sb.String()
}
