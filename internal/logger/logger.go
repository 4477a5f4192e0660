// Package logger provides file-backed logging for codeloom.
//
// The terminal belongs to the conversation UI, so unlike a typical CLI
// the logger never writes to stdout or stderr. Everything goes to a
// dated log file under the data directory.
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	instance *Logger
	once     sync.Once
)

// Logger writes timestamped log lines to a file.
type Logger struct {
	infoLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
	logFile     *os.File
	debug       bool
	mu          sync.Mutex
}

// Init initializes the global logger instance.
func Init(logDir string, debug bool) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(logDir, debug)
	})
	return initErr
}

func newLogger(logDir string, debug bool) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := fmt.Sprintf("codeloom-%s.log", time.Now().Format("2006-01-02"))
	logFilePath := filepath.Join(logDir, logFileName)

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		infoLogger:  log.New(logFile, "", log.LstdFlags),
		errorLogger: log.New(logFile, "ERROR: ", log.LstdFlags),
		debugLogger: log.New(logFile, "DEBUG: ", log.LstdFlags),
		logFile:     logFile,
		debug:       debug,
	}, nil
}

// Close closes the log file.
func Close() error {
	if instance != nil && instance.logFile != nil {
		return instance.logFile.Close()
	}
	return nil
}

// Info logs an informational message.
func Info(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.infoLogger.Printf(format, v...)
	}
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.errorLogger.Printf(format, v...)
	}
}

// Debug logs a debug message when debug logging is enabled.
func Debug(format string, v ...interface{}) {
	if instance != nil && instance.debug {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.debugLogger.Printf(format, v...)
	}
}

// Printf logs a formatted message at info level.
func Printf(format string, v ...interface{}) {
	Info(format, v...)
}
