package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const filePrefix = "dealscout-"

// Config logger configuration
type Config struct {
	LogDir     string        // Log directory
	Level      zapcore.Level // Log level
	MaxDays    int           // Max days to keep logs
	ConsoleOut bool          // Mirror to stderr as well
}

// ParseLevel maps a config string to a zap level, defaulting to info
func ParseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Logger is a zap logger writing to a daily rotated file
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger
	file  *dailyFile
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		defaultLogger, err = NewLogger(cfg)
	})
	return err
}

// NewLogger creates a new logger instance
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 7
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file := &dailyFile{dir: cfg.LogDir, maxDays: cfg.MaxDays}
	if err := file.rotateIfNeeded(); err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(encoder, file, cfg.Level)}
	if cfg.ConsoleOut {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), cfg.Level))
	}

	z := zap.New(zapcore.NewTee(cores...))
	return &Logger{zap: z, sugar: z.Sugar(), file: file}, nil
}

// Zap returns the structured logger for components that take *zap.Logger
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Close flushes and closes the current log file
func (l *Logger) Close() error {
	_ = l.zap.Sync()
	return l.file.Close()
}

// dailyFile is a zapcore.WriteSyncer that switches to a new file each day
// and keeps at most maxDays files.
type dailyFile struct {
	mu          sync.Mutex
	dir         string
	maxDays     int
	currentFile *os.File
	currentDate string
}

func (f *dailyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.rotateLocked(); err != nil {
		return 0, err
	}
	return f.currentFile.Write(p)
}

func (f *dailyFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentFile == nil {
		return nil
	}
	return f.currentFile.Sync()
}

func (f *dailyFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentFile == nil {
		return nil
	}
	err := f.currentFile.Close()
	f.currentFile = nil
	f.currentDate = ""
	return err
}

func (f *dailyFile) rotateIfNeeded() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotateLocked()
}

func (f *dailyFile) rotateLocked() error {
	today := time.Now().Format("2006-01-02")
	if f.currentDate == today && f.currentFile != nil {
		return nil
	}

	if f.currentFile != nil {
		f.currentFile.Close()
	}

	filename := filepath.Join(f.dir, fmt.Sprintf("%s%s.log", filePrefix, today))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	f.currentFile = file
	f.currentDate = today

	go cleanOldLogs(f.dir, f.maxDays)

	return nil
}

// cleanOldLogs removes log files beyond the newest maxDays
func cleanOldLogs(dir string, maxDays int) {
	files, err := filepath.Glob(filepath.Join(dir, filePrefix+"*.log"))
	if err != nil {
		return
	}

	if len(files) <= maxDays {
		return
	}

	// Names sort by date
	sort.Strings(files)

	for i := 0; i < len(files)-maxDays; i++ {
		os.Remove(files[i])
	}
}

// Package-level functions using the default logger

// L returns the default structured logger, or a no-op logger before Init
func L() *zap.Logger {
	if defaultLogger != nil {
		return defaultLogger.zap
	}
	return zap.NewNop()
}

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug(format, args...)
	}
}

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info(format, args...)
	}
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn(format, args...)
	}
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error(format, args...)
	}
}

// Sync flushes the default logger
func Sync() error {
	if defaultLogger != nil {
		return defaultLogger.zap.Sync()
	}
	return nil
}

// Close closes the default logger
func Close() error {
	if defaultLogger != nil {
		return defaultLogger.Close()
	}
	return nil
}

// GetDefault returns the default logger
func GetDefault() *Logger {
	return defaultLogger
}
