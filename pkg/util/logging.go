package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogger initializes the process logger
// NOTE: errors and above go to stderr, everything else to stdout; when logDir
// is given, JSON logs are also written to errors.log and standard.log
func DefaultLogger(debugMode bool, logDir string) (*zap.Logger, error) {
	logDir = strings.TrimSpace(logDir)

	var core zapcore.Core

	//---------------------------------------------------------------------------
	// log enablers and conjunction
	//---------------------------------------------------------------------------
	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		if !debugMode && lvl == zapcore.DebugLevel {
			return false
		}

		return lvl < zapcore.ErrorLevel
	})

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	stderr := zapcore.Lock(zapcore.AddSync(os.Stderr))
	stdout := zapcore.Lock(zapcore.AddSync(os.Stdout))

	//---------------------------------------------------------------------------
	// if logDir is empty, then returning a simple logger for stdout & stderr
	//---------------------------------------------------------------------------
	if logDir == "" {
		core = zapcore.NewTee(
			zapcore.NewCore(consoleEncoder, stderr, highPriority),
			zapcore.NewCore(consoleEncoder, stdout, lowPriority),
		)

		return zap.New(core), nil
	}

	// creating log directory if it doesn't exist
	if err := CreateDirectoryIfNotExists(logDir, 0750); err != nil {
		return nil, err
	}

	//---------------------------------------------------------------------------
	// errors logfile
	//---------------------------------------------------------------------------
	errFilepath := filepath.Join(logDir, "errors.log")
	errFile, err := os.OpenFile(errFilepath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create error log file %s", errFilepath)
	}
	errFileLog := zapcore.Lock(zapcore.AddSync(errFile))

	//---------------------------------------------------------------------------
	// regular logfile
	//---------------------------------------------------------------------------
	stdFilepath := filepath.Join(logDir, "standard.log")
	stdFile, err := os.OpenFile(stdFilepath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create standard log file %s", stdFilepath)
	}
	stdFileLog := zapcore.Lock(zapcore.AddSync(stdFile))

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	if debugMode {
		core = zapcore.NewTee(
			// files
			zapcore.NewCore(fileEncoder, errFileLog, highPriority),
			zapcore.NewCore(fileEncoder, stdFileLog, lowPriority),

			// stdout, stderr
			zapcore.NewCore(consoleEncoder, stderr, highPriority),
			zapcore.NewCore(consoleEncoder, stdout, lowPriority),
		)
	} else {
		core = zapcore.NewTee(
			zapcore.NewCore(fileEncoder, errFileLog, highPriority),
			zapcore.NewCore(fileEncoder, stdFileLog, lowPriority),
		)
	}

	return zap.New(core), nil
}

// FallbackLogger returns the given logger named after its owner, or a
// development logger when none is set
// NOTE: will panic if it fails to obtain a logger, having one is crucial
func FallbackLogger(logger *zap.Logger, name string) *zap.Logger {
	if logger != nil {
		return logger
	}

	l, err := zap.NewDevelopment()
	if err != nil {
		panic(errors.Wrapf(err, "failed to initialize %s logger", name))
	}

	return l.Named(name)
}
