// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logging configures the shared logrus instance used across the
// routing core. Embedders that bring their own logger can skip this package
// entirely; components only depend on the logrus API.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// LineFormatter renders log entries on a single line.
// Format: [2026-08-24 10:41:02] [info ] [router.go:182] message | key=value
type LineFormatter struct{}

// Format renders a single log entry.
func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}
	levelStr := fmt.Sprintf("%-5s", level)

	var formatted string
	if entry.Caller != nil {
		formatted = fmt.Sprintf("[%s] [%s] [%s:%d] %s", timestamp, levelStr, filepath.Base(entry.Caller.File), entry.Caller.Line, message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s", timestamp, levelStr, message)
	}

	if len(entry.Data) > 0 {
		formatted += " |"
		first := true
		for k, v := range entry.Data {
			if !first {
				formatted += ","
			}
			formatted += fmt.Sprintf(" %s=%v", k, v)
			first = false
		}
	}
	formatted += "\n"

	buffer.WriteString(formatted)
	return buffer.Bytes(), nil
}

// Setup configures the shared logrus instance with the line formatter.
// It is safe to call multiple times; initialization happens only once.
func Setup() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LineFormatter{})
	})
}

// ConfigureFileOutput switches logging to a rotating file under dir, or back
// to stdout when dir is empty. Rotation keeps maxSizeMB per file and up to
// maxBackups old files.
func ConfigureFileOutput(dir string, maxSizeMB, maxBackups int) error {
	Setup()

	writerMu.Lock()
	defer writerMu.Unlock()

	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}

	if dir == "" {
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 20
	}
	if maxBackups <= 0 {
		maxBackups = 5
	}

	logWriter = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "skillrouter.log"),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(logWriter))
	return nil
}

// SetLevel parses and applies a textual log level ("debug", "info", ...).
// Unknown levels leave the current level unchanged.
func SetLevel(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown log level %q, keeping %s", level, log.GetLevel())
		return
	}
	log.SetLevel(parsed)
}
