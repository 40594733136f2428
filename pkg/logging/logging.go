// Package logging builds the service logger: everything goes to stdout,
// while Error and above are additionally appended as JSON to a durable log
// file. Caller-input failures (validation, insufficient stock) are logged
// at Warn by the services, so they never reach the durable sink.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns the configured logger and a flush function to call on
// shutdown. errorLogPath is the durable error sink; it is opened in append
// mode and created when missing.
func New(errorLogPath string) (*zap.Logger, func(), error) {
	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), zapcore.DebugLevel)

	errorFile, err := os.OpenFile(errorLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open error log: %w", err)
	}

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	fileCore := zapcore.NewCore(fileEncoder, zapcore.Lock(errorFile), zapcore.ErrorLevel)

	logger := zap.New(zapcore.NewTee(consoleCore, fileCore))
	flush := func() {
		logger.Sync()
		errorFile.Close()
	}
	return logger, flush, nil
}
