// Package logging builds the zap logger used by every shopfloor command.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/msageha/shopfloor/internal/model"
)

// FileName is the log file under <state>/logs.
const FileName = "shopfloor.log"

// New builds a production (JSON) logger at cfg.Level. Output goes to
// logPath when set, plus stderr when toStderr is true. With neither, the
// logger discards everything.
func New(cfg model.LoggingConfig, logPath string, toStderr bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level %q: %w", cfg.Level, err)
	}

	var outputs []string
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		outputs = append(outputs, logPath)
	}
	if toStderr {
		outputs = append(outputs, "stderr")
	}
	if len(outputs) == 0 {
		return zap.NewNop(), nil
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = outputs
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Sampling = nil

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Path is the log file of a state directory.
func Path(stateDir string) string {
	return filepath.Join(stateDir, "logs", FileName)
}
