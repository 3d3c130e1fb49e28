// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package logger provides the process-wide structured logger used across
// chaosfs: a severity-leveled, text-or-JSON slog.Logger that every
// orchestration step logs through so a partially unwound teardown can be
// diagnosed from the log alone.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/chaos-mesh/chaosfs/internal/config"
)

// Custom levels. slog's builtin levels only cover Debug/Info/Warn/Error; we
// add Trace below Debug and Off above Error so "nothing is logged" is a
// real, selectable level rather than a magic sentinel.
const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelOff   slog.Level = 12
)

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	format          string
	level           string
	logRotateConfig config.LogRotateConfig
	sessionID       string
}

var defaultLoggerFactory = &loggerFactory{
	sysWriter: os.Stderr,
	format:    "text",
	level:     config.INFO,
	sessionID: uuid.NewString(),
}

var defaultLogger = slog.New(defaultLoggerFactory.createHandler(new(slog.LevelVar)))

// Init (re)configures the default logger from a LoggingConfig: chooses
// stderr or cfg.FilePath (opened for append) as the sink, sets the format
// and level, and
// stamps every subsequent record with a session ID so logs from several
// concurrently running chaosfs instances on the same host can be told apart.
func Init(cfg config.LoggingConfig) error {
	factory := &loggerFactory{
		format:          cfg.Format,
		level:           cfg.Severity,
		logRotateConfig: cfg.LogRotateConfig,
		sessionID:       defaultLoggerFactory.sessionID,
	}

	if cfg.FilePath == "" {
		factory.sysWriter = os.Stderr
	} else {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file %q: %w", cfg.FilePath, err)
		}
		factory.file = f
	}

	defaultLoggerFactory = factory

	programLevel := new(slog.LevelVar)
	setLoggingLevel(factory.level, programLevel)
	defaultLogger = slog.New(factory.createHandler(programLevel))
	return nil
}

// SetLogFormat switches the active logger between "text" and "json" output
// without touching the configured sink or level. An empty format defaults
// to json, matching the teacher's own fallback.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format

	programLevel := new(slog.LevelVar)
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createHandler(programLevel))
}

func (f *loggerFactory) sink() io.Writer {
	if f.file != nil {
		return f.file
	}
	if f.sysWriter != nil {
		return f.sysWriter
	}
	return os.Stderr
}

func (f *loggerFactory) createHandler(level *slog.LevelVar) slog.Handler {
	return f.createJsonOrTextHandler(f.sink(), level, "")
}

// createJsonOrTextHandler builds the actual slog.Handler, formatting the
// time as "dd/mm/yyyy hh:mm:ss.micros", renaming the default "msg" key to
// "message" and the default "level" key to "severity" (and resolving it to
// our custom level names) so log output reads the way the rest of the
// corpus's severity-tagged loggers do.
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.TimeKey:
			a.Value = slog.StringValue(a.Value.Time().Format("02/01/2006 15:04:05.000000"))
		case slog.MessageKey:
			a.Key = "message"
			if prefix != "" {
				a.Value = slog.StringValue(prefix + a.Value.String())
			}
		case slog.LevelKey:
			a.Key = "severity"
			lvl, _ := a.Value.Any().(slog.Level)
			if name, ok := levelNames[lvl]; ok {
				a.Value = slog.StringValue(name)
			}
		}
		return a
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replace}

	if f.format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// setLoggingLevel maps a config.Severity (matched case-insensitively) onto
// the slog.LevelVar backing the active handler.
func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch strings.ToUpper(level) {
	case config.TRACE:
		programLevel.Set(LevelTrace)
	case config.DEBUG:
		programLevel.Set(LevelDebug)
	case config.INFO:
		programLevel.Set(LevelInfo)
	case config.WARNING:
		programLevel.Set(LevelWarn)
	case config.ERROR:
		programLevel.Set(LevelError)
	case config.OFF:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

func logf(level slog.Level, format string, v ...any) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...), slog.String("session", defaultLoggerFactory.sessionID))
}

func Tracef(format string, v ...any) { logf(LevelTrace, format, v...) }
func Debugf(format string, v ...any) { logf(LevelDebug, format, v...) }
func Infof(format string, v ...any)  { logf(LevelInfo, format, v...) }
func Warnf(format string, v ...any)  { logf(LevelWarn, format, v...) }
func Errorf(format string, v ...any) { logf(LevelError, format, v...) }

// SessionID returns the randomly generated identifier stamped on every log
// line emitted by this process.
func SessionID() string {
	return defaultLoggerFactory.sessionID
}
