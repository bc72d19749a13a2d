package types

type RunMode string

const (
	// ModeLocal is the mode for running the API server against a local data directory
	ModeLocal RunMode = "local"
	// ModeAPI is the mode for running the API server in a deployed environment
	ModeAPI RunMode = "api"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
