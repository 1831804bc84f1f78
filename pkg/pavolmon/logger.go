package pavolmon

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MixyLabs/pavolmon/pkg/pavolmon/util"
)

const (
	buildTypeRelease = "release"

	logFilename = "pavolmon-latest-run.log"
)

// logDirectory holds the log file and crashlogs
var logDirectory = util.StateDir(appName)

// NewLogger provides a logger instance for the whole program. Stdout belongs
// to the status line, so logs only go to the log file (and stderr in dev builds).
func NewLogger(buildType string, level zap.AtomicLevel) (*zap.SugaredLogger, error) {
	var loggerConfig zap.Config

	if err := util.EnsureDirExists(logDirectory); err != nil {
		return nil, fmt.Errorf("ensure log directory exists: %w", err)
	}

	logPath := filepath.Join(logDirectory, logFilename)

	if buildType == buildTypeRelease {
		loggerConfig = zap.NewProductionConfig()

		loggerConfig.OutputPaths = []string{logPath}
		loggerConfig.ErrorOutputPaths = []string{logPath}
		loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		loggerConfig = zap.NewDevelopmentConfig()

		loggerConfig.OutputPaths = []string{"stderr", logPath}
		loggerConfig.ErrorOutputPaths = []string{"stderr"}

		// make it colorful
		loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	}

	loggerConfig.Level = level

	// all build types: make it readable
	loggerConfig.DisableCaller = true
	loggerConfig.EncoderConfig.EncodeName = func(s string, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(fmt.Sprintf("%-27s", s))
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("create zap logger: %w", err)
	}

	return logger.Sugar(), nil
}
