package mesh

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Info(...interface{})
	Debug(...interface{})
	Error(...interface{})
	Warn(...interface{})

	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Warnf(string, ...interface{})

	ChildLogger(tags map[string]interface{}) Logger
}

var logger Logger
var loggerMu sync.Mutex

// LogOptions selects level, format and an optional rotating log file.
type LogOptions struct {
	Level  string
	Format string // text | json

	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func SetLogLevelMax() {
	l := GetLogger()

	if lg, ok := l.(*defaultLogger); ok {
		lg.Entry.Logger.SetLevel(logrus.TraceLevel)
	} else {
		l.Error("non-default logger, don't know how to set level")
	}
}

func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

func GetLogger() Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger == nil {
		logger = buildDefaultLogger()
	}

	return logger
}

// ConfigureLogger replaces the package logger with one built from opts.
func ConfigureLogger(opts LogOptions) error {
	lvl := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		lvl, err = logrus.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return err
		}
	}

	var out io.Writer = os.Stderr
	if opts.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,  // megabytes
			MaxBackups: opts.MaxBackups, // number of backups
			MaxAge:     opts.MaxAgeDays, // days
			Compress:   opts.Compress,
		})
	}

	var f logrus.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	if opts.Format == "json" {
		f = &logrus.JSONFormatter{}
	}

	l := &logrus.Logger{
		Formatter: f,
		Level:     lvl,
		Out:       out,
		Hooks:     make(logrus.LevelHooks),
	}

	SetLogger(&defaultLogger{Entry: l.WithFields(map[string]interface{}{})})
	return nil
}

type defaultLogger struct {
	*logrus.Entry
}

func buildDefaultLogger() Logger {
	l := &logrus.Logger{
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Level:     logrus.InfoLevel,
		Out:       os.Stderr,
		Hooks:     make(logrus.LevelHooks),
	}

	return &defaultLogger{Entry: l.WithFields(map[string]interface{}{})}
}

func (d *defaultLogger) ChildLogger(ff map[string]interface{}) Logger {
	nl := &defaultLogger{d.Entry.WithFields(ff)}
	return nl
}
