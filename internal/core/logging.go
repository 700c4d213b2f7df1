package core

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the logger for one CLI run, named after the command being
// run. Logs go to stderr unless log_file_path is set so that stdout only ever
// carries command output.
func NewLogger(cfg *Config, command string) (*zap.SugaredLogger, error) {
	logLvl, err := zapcore.ParseLevel(cfg.Logging.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	output := "stderr"
	toTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if cfg.Logging.LogFilePath != "" {
		output = cfg.Logging.LogFilePath
		toTerminal = false
	}

	logConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(logLvl),
		Development:       true,
		DisableCaller:     !cfg.Logging.IncludeCaller,
		DisableStacktrace: true,
		Encoding:          "console",
		EncoderConfig:     encoderConfig(toTerminal),
		OutputPaths:       []string{output},
		ErrorOutputPaths:  []string{"stderr"},
	}
	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	return logger.Named(command).Sugar(), nil
}

// A run lasts a few seconds at most, so a terminal gets colored levels and no
// timestamps. Log files keep timestamps to tell runs apart.
func encoderConfig(toTerminal bool) zapcore.EncoderConfig {
	encCfg := zap.NewDevelopmentEncoderConfig()
	if toTerminal {
		encCfg.TimeKey = ""
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return encCfg
	}
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return encCfg
}
