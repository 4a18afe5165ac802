package settings

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidLogLevel is returned when a log level name is not recognised.
	ErrInvalidLogLevel = errors.New("log level must be one of: debug, info, warn, error, fatal")
	// ErrInvalidVariantProcessor is returned when a variant processor name is not recognised.
	ErrInvalidVariantProcessor = errors.New("variant processor must be one of: mini_magick, vips")
)

// LogLevel is the verbosity of the application logger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// ParseLogLevel converts a case-insensitive level name into a LogLevel.
func ParseLogLevel(raw string) (LogLevel, error) {
	switch level := LogLevel(strings.ToLower(strings.TrimSpace(raw))); level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return level, nil
	case "warning":
		return LogLevelWarn, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidLogLevel, raw)
	}
}

func (l LogLevel) String() string {
	return string(l)
}

// VariantProcessor names the image library used to build attachment variants.
type VariantProcessor string

const (
	VariantProcessorMiniMagick VariantProcessor = "mini_magick"
	VariantProcessorVips       VariantProcessor = "vips"
)

// ParseVariantProcessor converts a processor name into a VariantProcessor.
func ParseVariantProcessor(raw string) (VariantProcessor, error) {
	switch p := VariantProcessor(strings.ToLower(strings.TrimSpace(raw))); p {
	case VariantProcessorMiniMagick, VariantProcessorVips:
		return p, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidVariantProcessor, raw)
	}
}

func (p VariantProcessor) String() string {
	return string(p)
}
