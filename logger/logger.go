package logger

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// noopFunc is a reusable no-op function to avoid allocations
var noopFunc = func() {}

// MaxLogLines defines the maximum number of lines to keep in the log file
const MaxLogLines = 5000

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// traceLevel sits one step below zap's debug level.
const traceLevel = zapcore.DebugLevel - 1

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelTrace:
		return traceLevel
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LogLevelTrace
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LimitedLogger owns the log file, trims it to MaxLogLines and feeds a zap core.
type LimitedLogger struct {
	file      *os.File
	lineCount int
	level     zap.AtomicLevel
	sugar     *zap.SugaredLogger
	mutex     sync.Mutex
}

var (
	globalMu     sync.RWMutex
	globalLogger *LimitedLogger
	// sugar is used by the package-level helpers; Nop until a logger is installed
	sugar = zap.NewNop().Sugar()
)

// NewLimitedLogger creates a LimitedLogger writing to file and installs it globally.
func NewLimitedLogger(file *os.File, level LogLevel) *LimitedLogger {
	ll := &LimitedLogger{
		file:  file,
		level: zap.NewAtomicLevelAt(level.zapLevel()),
	}
	ll.countExistingLines()

	core := zapcore.NewCore(newEncoder(), zapcore.AddSync(ll), ll.level)
	ll.sugar = zap.New(core).Sugar()

	globalMu.Lock()
	globalLogger = ll
	sugar = ll.sugar
	globalMu.Unlock()
	return ll
}

// NewConsole builds an unlimited logger on stderr, used before the log file is known.
func NewConsole(level LogLevel) *zap.SugaredLogger {
	core := zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level.zapLevel()))
	return zap.New(core).Sugar()
}

// UseConsole installs a stderr logger as the global logger.
func UseConsole(level LogLevel) {
	globalMu.Lock()
	sugar = NewConsole(level)
	globalMu.Unlock()
}

func newEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05"),
		EncodeLevel:    encodeLevel,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == traceLevel {
		enc.AppendString("[TRACE]")
		return
	}
	enc.AppendString("[" + l.CapitalString() + "]")
}

// SetLevel sets the logging level
func (ll *LimitedLogger) SetLevel(level LogLevel) {
	ll.level.SetLevel(level.zapLevel())
}

// SetGlobalLevel sets the logging level on the global logger
func SetGlobalLevel(level LogLevel) {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		globalLogger.SetLevel(level)
	}
}

func current() *zap.SugaredLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return sugar
}

// Trace returns a function that logs operation duration when called.
// Returns a no-op function when TRACE level is disabled to avoid overhead.
// Usage: defer logger.Trace("operation")()
func Trace(name string) func() {
	s := current()
	if !s.Desugar().Core().Enabled(traceLevel) {
		return noopFunc
	}
	start := time.Now()
	return func() {
		s.Logf(traceLevel, "%s: %v", name, time.Since(start))
	}
}

func Debug(format string, v ...any) { current().Debugf(format, v...) }

func Info(format string, v ...any) { current().Infof(format, v...) }

func Warn(format string, v ...any) { current().Warnf(format, v...) }

func Error(format string, v ...any) { current().Errorf(format, v...) }

// Fatal logs an error message and exits with code 1
func Fatal(format string, v ...any) {
	current().Errorf(format, v...)
	Sync()
	os.Exit(1)
}

// Sync flushes the global logger.
func Sync() {
	_ = current().Sync()
}

// countExistingLines counts the number of lines in the current log file
func (ll *LimitedLogger) countExistingLines() {
	ll.mutex.Lock()
	defer ll.mutex.Unlock()

	ll.file.Seek(0, 0)
	scanner := bufio.NewScanner(ll.file)

	count := 0
	for scanner.Scan() {
		count++
	}
	ll.lineCount = count

	ll.file.Seek(0, 2)
}

// Write implements io.Writer; zap's core writes encoded entries through it.
func (ll *LimitedLogger) Write(p []byte) (n int, err error) {
	ll.mutex.Lock()
	defer ll.mutex.Unlock()

	n, err = ll.file.Write(p)
	if err != nil {
		return n, err
	}

	ll.lineCount += strings.Count(string(p), "\n")
	if ll.lineCount > MaxLogLines {
		ll.rotateLogFile()
	}

	return n, err
}

// rotateLogFile trims the log file to keep only the last MaxLogLines lines
func (ll *LimitedLogger) rotateLogFile() {
	ll.file.Seek(0, 0)
	scanner := bufio.NewScanner(ll.file)
	var lines []string

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) > MaxLogLines {
		lines = lines[len(lines)-MaxLogLines:]
	}

	ll.file.Truncate(0)
	ll.file.Seek(0, 0)

	for _, line := range lines {
		ll.file.WriteString(line + "\n")
	}

	ll.lineCount = len(lines)
}

// Close flushes zap and closes the underlying file
func (ll *LimitedLogger) Close() error {
	_ = ll.sugar.Sync()

	globalMu.Lock()
	if globalLogger == ll {
		globalLogger = nil
		sugar = zap.NewNop().Sugar()
	}
	globalMu.Unlock()

	return ll.file.Close()
}
