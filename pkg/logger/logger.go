package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

type logger struct {
	mu    sync.Mutex
	level Level
	out   io.Writer
	file  io.WriteCloser
}

var std = &logger{level: LevelInfo, out: os.Stderr}

// SetLevel sets the minimum level emitted to all sinks.
func SetLevel(level Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.level = level
}

// SetLogFile adds a file sink alongside stderr. Passing an empty path
// removes any existing file sink.
func SetLogFile(path string) error {
	std.mu.Lock()
	defer std.mu.Unlock()

	if std.file != nil {
		std.file.Close()
		std.file = nil
	}
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("logger: open log file: %w", err)
	}
	std.file = f
	return nil
}

func (l *logger) log(level Level, component, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("15:04:05"))
	sb.WriteString(" | ")
	sb.WriteString(fmt.Sprintf("%-5s", levelNames[level]))
	sb.WriteString(" | ")
	if component != "" {
		sb.WriteString("[")
		sb.WriteString(component)
		sb.WriteString("] ")
	}
	sb.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
		}
	}
	sb.WriteString("\n")

	line := sb.String()
	l.out.Write([]byte(line))
	if l.file != nil {
		l.file.Write([]byte(line))
	}
}

func DebugC(component, msg string) { std.log(LevelDebug, component, msg, nil) }
func InfoC(component, msg string)  { std.log(LevelInfo, component, msg, nil) }
func WarnC(component, msg string)  { std.log(LevelWarn, component, msg, nil) }
func ErrorC(component, msg string) { std.log(LevelError, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	std.log(LevelDebug, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	std.log(LevelInfo, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	std.log(LevelWarn, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	std.log(LevelError, component, msg, fields)
}
