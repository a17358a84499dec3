package shared

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	rlog "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

// ConfigureLogging applies level, formatter and output settings to the standard logrus logger
func ConfigureLogging(config LoggingConfig) {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		logrus.WithField("level", config.Level).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch strings.ToLower(config.Format) {
	case "text":
		logrus.SetReportCaller(level >= logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(frame *runtime.Frame) (string, string) {
				_, fileName := filepath.Split(frame.File)
				return "", fmt.Sprintf("%s:%d", fileName, frame.Line)
			},
		})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if config.FilePath != "" {
		writer, err := NewRotatingLogWriter(config.FilePath, config.SaveDays)
		if err != nil {
			logrus.WithError(err).WithField("path", config.FilePath).Warn("Log file disabled, logging to stdout only")
		} else {
			logrus.SetOutput(io.MultiWriter(os.Stdout, writer))
		}
	}

	logrus.WithFields(logrus.Fields{
		"component":    "Logging",
		"level":        level.String(),
		"format":       config.Format,
		"service_name": config.ServiceName,
		"file":         config.FilePath,
	}).Debug("Logging configured")
}

// NewRotatingLogWriter writes to path.YYYYMMDD, rotating daily. saveDays 0
// keeps a week of files.
func NewRotatingLogWriter(path string, saveDays uint) (io.Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	options := []rlog.Option{rlog.WithRotationTime(24 * time.Hour)}
	if saveDays > 0 {
		options = append(options, rlog.WithRotationCount(saveDays))
	}
	return rlog.New(path+".%Y%m%d", options...)
}
