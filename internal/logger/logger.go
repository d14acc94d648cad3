// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the leveled, text-or-JSON operational logger used
// by all three wfs binaries.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity names accepted by SetSeverity and the mount --log-file config.
const (
	SeverityTrace   = "TRACE"
	SeverityDebug   = "DEBUG"
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
	SeverityOff     = "OFF"
)

// Custom slog levels: slog only ships Debug/Info/Warn/Error, so Trace sits
// below Debug and Off sits above Error, wide enough that no real record
// ever reaches it.
var (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

// RotateConfig mirrors lumberjack.Logger's knobs, kept as a separate type so
// callers don't need to import lumberjack just to build one.
type RotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

func DefaultRotateConfig() RotateConfig {
	return RotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: false}
}

type loggerFactory struct {
	mu        sync.Mutex
	file      *lumberjack.Logger
	sysWriter io.Writer
	format    string
	level     string
	rotate    RotateConfig
	prefix    string
}

func (f *loggerFactory) writer() io.Writer {
	if f.file != nil {
		return f.file
	}
	return f.sysWriter
}

func (f *loggerFactory) handler() slog.Handler {
	programLevel := new(slog.LevelVar)
	setLoggingLevel(f.level, programLevel)
	return createJsonOrTextHandler(f.writer(), programLevel, f.format, f.prefix)
}

var (
	defaultLoggerFactory = &loggerFactory{
		sysWriter: os.Stderr,
		format:    "text",
		level:     SeverityInfo,
		rotate:    DefaultRotateConfig(),
	}
	defaultLogger = slog.New(defaultLoggerFactory.handler())
)

func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	case SeverityTrace:
		programLevel.Set(LevelTrace)
	case SeverityDebug:
		programLevel.Set(LevelDebug)
	case SeverityInfo:
		programLevel.Set(LevelInfo)
	case SeverityWarning:
		programLevel.Set(LevelWarn)
	case SeverityError:
		programLevel.Set(LevelError)
	default:
		programLevel.Set(LevelOff)
	}
}

func severityName(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return SeverityTrace
	case level < LevelInfo:
		return SeverityDebug
	case level < LevelWarn:
		return SeverityInfo
	case level < LevelError:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// textHandler renders one line per record as time="..." severity=X
// message="...", the shape operators grep mount logs for.
type textHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
	mu     sync.Mutex
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n",
		r.Time.Format("2006/01/02 15:04:05.000000"), severityName(r.Level), h.prefix+r.Message)
	return err
}

func (h *textHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *textHandler) WithGroup(_ string) slog.Handler      { return h }

type jsonTimestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int   `json:"nanos"`
}

type jsonRecord struct {
	Timestamp jsonTimestamp `json:"timestamp"`
	Severity  string        `json:"severity"`
	Message   string        `json:"message"`
}

type jsonHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
	mu     sync.Mutex
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *jsonHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.w).Encode(jsonRecord{
		Timestamp: jsonTimestamp{Seconds: r.Time.Unix(), Nanos: r.Time.Nanosecond()},
		Severity:  severityName(r.Level),
		Message:   h.prefix + r.Message,
	})
}

func (h *jsonHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *jsonHandler) WithGroup(_ string) slog.Handler      { return h }

func createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, format, prefix string) slog.Handler {
	if format == "json" {
		return &jsonHandler{w: w, level: level, prefix: prefix}
	}
	return &textHandler{w: w, level: level, prefix: prefix}
}

// SetSeverity changes the minimum severity the default logger emits.
func SetSeverity(level string) {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()
	defaultLoggerFactory.level = level
	defaultLogger = slog.New(defaultLoggerFactory.handler())
}

// SetLogFormat switches the default logger between "text" and "json"
// rendering. Anything other than "json" is treated as text.
func SetLogFormat(format string) {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.handler())
}

// SetPrefix tags every subsequent log line, the way mount tags its FUSE
// debug log with the filesystem name.
func SetPrefix(prefix string) {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()
	defaultLoggerFactory.prefix = prefix
	defaultLogger = slog.New(defaultLoggerFactory.handler())
}

// InitLogFile redirects the default logger to a lumberjack-rotated file at
// path, replacing the stderr sink used until now.
func InitLogFile(path string, rotate RotateConfig, format, severity string) error {
	if path == "" {
		return fmt.Errorf("logger: empty log file path")
	}

	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()

	defaultLoggerFactory.file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotate.MaxFileSizeMB,
		MaxBackups: rotate.BackupFileCount,
		Compress:   rotate.Compress,
	}
	defaultLoggerFactory.rotate = rotate
	defaultLoggerFactory.format = format
	defaultLoggerFactory.level = severity
	defaultLogger = slog.New(defaultLoggerFactory.handler())
	return nil
}

func Tracef(format string, v ...interface{}) { logf(LevelTrace, format, v...) }
func Debugf(format string, v ...interface{}) { logf(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { logf(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { logf(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { logf(LevelError, format, v...) }

func Trace(msg string) { logf(LevelTrace, "%s", msg) }
func Debug(msg string) { logf(LevelDebug, "%s", msg) }
func Info(msg string)  { logf(LevelInfo, "%s", msg) }
func Warn(msg string)  { logf(LevelWarn, "%s", msg) }
func Error(msg string) { logf(LevelError, "%s", msg) }

func logf(level slog.Level, format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}
