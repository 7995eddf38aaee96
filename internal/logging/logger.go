// Package logging provides categorized, config-driven logging for tasknerd.
// Every category is a named child of one zap logger. Until Initialize is
// called all categories are silent, which keeps library use and tests quiet.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	// Core system categories
	CategoryBoot   Category = "boot"   // Boot/initialization
	CategoryConfig Category = "config" // Config load, save and reload
	CategoryUI     Category = "ui"     // Interactive chat surface

	// Understanding categories
	CategoryPerception Category = "perception" // Intent classification and suggester calls
	CategoryExtraction Category = "extraction" // Date and priority extraction
	CategoryMatcher    Category = "matcher"    // Fuzzy task matching

	// Execution categories
	CategoryWorkflow     Category = "workflow"     // Workflow state machine
	CategoryDispatch     Category = "dispatch"     // Confirmation gate and mutations
	CategoryOrchestrator Category = "orchestrator" // Turn processing
	CategoryStore        Category = "store"        // Task and conversation persistence
	CategoryAudit        Category = "audit"        // Structured audit events
)

// Options controls how Initialize builds the root logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Dir, when set, sends output to Dir/tasknerd.log instead of stderr.
	Dir string
	// JSON selects the JSON encoder; otherwise the console encoder is used.
	JSON bool
	// Categories disables individual categories when mapped to false.
	// Unlisted categories are enabled.
	Categories map[string]bool
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers     = make(map[Category]*Logger)
	loggersMu   sync.RWMutex
	root        = zap.NewNop()
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	categories  map[string]bool
	initialized bool
)

// ParseLevel maps a config string onto a zap level. Unknown strings fall back to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Initialize builds the root zap logger from opts. It can be called again to
// reconfigure; cached category loggers are rebuilt on next Get.
func Initialize(opts Options) error {
	cfg := zap.NewProductionConfig()
	atomicLevel.SetLevel(ParseLevel(opts.Level))
	cfg.Level = atomicLevel
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	if !opts.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		path := filepath.Join(opts.Dir, "tasknerd.log")
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	} else {
		cfg.OutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	install(logger, opts.Categories)

	boot := Get(CategoryBoot)
	boot.Info("=== tasknerd logging initialized ===")
	boot.Info("Log level: %s", atomicLevel.Level())
	if opts.Dir != "" {
		boot.Info("Logs directory: %s", opts.Dir)
	}
	return nil
}

// UseCore installs a caller-provided core. Tests pair this with zaptest/observer.
func UseCore(core zapcore.Core) {
	install(zap.New(core), nil)
}

func install(logger *zap.Logger, cats map[string]bool) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	old := root
	root = logger
	categories = cats
	initialized = true
	loggers = make(map[Category]*Logger)
	_ = old.Sync()
}

// Reset returns logging to the silent pre-Initialize state.
func Reset() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	_ = root.Sync()
	root = zap.NewNop()
	categories = nil
	initialized = false
	loggers = make(map[Category]*Logger)
}

// SetLevel changes the level of every category at runtime.
func SetLevel(level string) {
	atomicLevel.SetLevel(ParseLevel(level))
}

// IsInitialized reports whether Initialize or UseCore has run.
func IsInitialized() bool {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	return initialized
}

// IsCategoryEnabled checks if a category is enabled.
func IsCategoryEnabled(category Category) bool {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !initialized {
		return false
	}
	if categories == nil {
		return true
	}
	enabled, ok := categories[string(category)]
	return !ok || enabled
}

// ZapLogger exposes the root logger for libraries that take a *zap.Logger.
func ZapLogger() *zap.Logger {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	return root
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	base := zap.NewNop()
	if categoryEnabledLocked(category) {
		base = root.Named(string(category))
	}
	l := &Logger{category: category, sugar: base.Sugar()}
	loggers[category] = l
	return l
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying structured key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Category returns the logger's category.
func (l *Logger) Category() Category {
	return l.category
}

// Sync flushes buffered output. Call before exit.
func Sync() {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	_ = root.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting logger first
// =============================================================================

func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

func Perception(format string, args ...interface{}) {
	Get(CategoryPerception).Info(format, args...)
}

func PerceptionDebug(format string, args ...interface{}) {
	Get(CategoryPerception).Debug(format, args...)
}

func PerceptionWarn(format string, args ...interface{}) {
	Get(CategoryPerception).Warn(format, args...)
}

func ExtractionDebug(format string, args ...interface{}) {
	Get(CategoryExtraction).Debug(format, args...)
}

func MatcherDebug(format string, args ...interface{}) {
	Get(CategoryMatcher).Debug(format, args...)
}

func Workflow(format string, args ...interface{}) {
	Get(CategoryWorkflow).Info(format, args...)
}

func WorkflowDebug(format string, args ...interface{}) {
	Get(CategoryWorkflow).Debug(format, args...)
}

func Dispatch(format string, args ...interface{}) {
	Get(CategoryDispatch).Info(format, args...)
}

func DispatchError(format string, args ...interface{}) {
	Get(CategoryDispatch).Error(format, args...)
}

func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Info(format, args...)
}

func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debug(format, args...)
}

func OrchestratorWarn(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Warn(format, args...)
}

func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
