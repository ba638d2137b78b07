// Package logging provides centralized logging functionality using logrus.
// It configures structured logging with JSON formatting and provides
// convenience functions for different log levels.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

var currentTime = time.Now()
var version = currentTime.Format("2006-01-02T15:04:05")

// programName is used as a field in all log entries for identification
var programName = os.Args[0] + "-" + version

// LogInfo logs an informational message with the programName field.
func LogInfo(msg string) {
	log.WithFields(log.Fields{"job": programName}).Info(msg)
}

// LogDebug logs a debug message with the programName field.
// Debug output is only emitted when the CLI runs with --debug.
func LogDebug(msg string) {
	log.WithFields(log.Fields{"job": programName}).Debug(msg)
}

// LogWarn logs a warning with the programName field.
func LogWarn(msg string) {
	log.WithFields(log.Fields{"job": programName}).Warn(msg)
}

// LogError logs the provided error message with the programName field.
// This function should be used to log recoverable errors that do not terminate the program.
func LogError(msg string) {
	log.WithFields(log.Fields{"job": programName}).Error(msg)
}

// WithCommand returns an entry carrying the programName and the management
// API command, for messages emitted while a call is in flight.
func WithCommand(command string) *log.Entry {
	return log.WithFields(log.Fields{"job": programName, "command": command})
}

// SetDebug switches the global level between debug and info.
func SetDebug(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
		return
	}
	log.SetLevel(log.InfoLevel)
}

// PrepareLogs initializes the logging system with the specified log file.
// It configures logging to write to both stdout and the log file with JSON formatting.
//
// Parameters:
//   - logName: Path to the log file (will be created if it doesn't exist)
//
// Returns an error if the log file cannot be opened or created.
func PrepareLogs(logName string) error {
	logFile, err := os.OpenFile(logName, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}
	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)
	log.SetFormatter(&log.JSONFormatter{PrettyPrint: true})
	return nil
}
