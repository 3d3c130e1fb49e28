// Package config holds small, dependency-free value types shared between
// the CLI layer and the logger: log severities and the on-disk rotation
// knobs for the optional log file.
package config

// Severity names accepted by --verbose and the logging config. Matching the
// teacher's five-level scheme plus OFF, ordered from noisiest to silent.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// LogRotateConfig holds lumberjack-style rotation knobs for the optional
// log file. logger.Init stores them but does not rotate the file. chaosfs
// logs to stderr by default; a file is only opened when
// LoggingConfig.FilePath is set, which no command-line flag does.
type LogRotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

// DefaultLogRotateConfig mirrors sane defaults: 512MB per file, keep 10
// backups, compress rotated files.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{
		MaxFileSizeMB:   512,
		BackupFileCount: 10,
		Compress:        true,
	}
}

// LoggingConfig is the flag-bindable logging configuration for a chaosfs
// invocation.
type LoggingConfig struct {
	FilePath        string
	Severity        string
	Format          string
	LogRotateConfig LogRotateConfig
}
