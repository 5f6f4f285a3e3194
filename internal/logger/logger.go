package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variable to configure log file path.
const envLogPath = "QBD_MCP_LOG"

// Config holds logger configuration. Output always goes to a file or stderr:
// stdout carries the MCP protocol.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Path   string // file path, "stderr", or "" for DefaultPath()
}

var (
	mu            sync.Mutex
	std           = zap.NewNop()
	closeFn       func() error
	isInitialized bool
)

// DefaultPath returns QBD_MCP_LOG, or qbd-mcp.log next to the executable.
func DefaultPath() string {
	if p := os.Getenv(envLogPath); p != "" {
		return p
	}
	// Default to the directory where the executable is located
	if exePath, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exePath), "qbd-mcp.log")
	}
	return "./qbd-mcp.log"
}

// New builds a logger for cfg. The returned closer releases the log file.
func New(cfg Config) (*zap.Logger, func() error, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath()
	}

	var ws zapcore.WriteSyncer
	closer := func() error { return nil }
	if strings.EqualFold(path, "stderr") {
		ws = zapcore.AddSync(os.Stderr)
	} else {
		if err := ensureParentDir(path); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		ws = zapcore.AddSync(f)
		closer = f.Close
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), ws, ParseLevel(cfg.Level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), closer, nil
}

// Init installs the package-level logger returned by L.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return nil
	}
	l, closer, err := New(cfg)
	if err != nil {
		return err
	}
	std, closeFn, isInitialized = l, closer, true
	return nil
}

// L returns the package-level logger. It discards output until Init is called.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return std
}

// Close flushes and releases the log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if !isInitialized {
		return nil
	}
	_ = std.Sync()
	err := closeFn()
	std, closeFn, isInitialized = zap.NewNop(), nil, false
	return err
}

// Infof logs informational messages.
func Infof(format string, args ...any) { L().Sugar().Infof(format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { L().Sugar().Warnf(format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { L().Sugar().Errorf(format, args...) }

// ParseLevel converts a level name to a zapcore.Level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
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

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if strings.EqualFold(format, "console") {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
