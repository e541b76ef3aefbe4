package log

import (
	"fmt"

	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// whatsMeowLogger routes whatsmeow's internal logging into logrus.
type whatsMeowLogger struct {
	entry *logrus.Entry
	level logrus.Level
}

// WhatsMeow returns a waLog.Logger for the given whatsmeow module. Messages below
// minLevel ("debug", "info", "warn", "error") are dropped before formatting.
func WhatsMeow(module string, minLevel string) waLog.Logger {
	level, err := logrus.ParseLevel(minLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	return &whatsMeowLogger{
		entry: logger.WithField("module", "whatsmeow/"+module),
		level: level,
	}
}

func (l *whatsMeowLogger) log(level logrus.Level, msg string, args ...interface{}) {
	if level > l.level {
		return
	}
	l.entry.Log(level, fmt.Sprintf(msg, args...))
}

func (l *whatsMeowLogger) Debugf(msg string, args ...interface{}) {
	l.log(logrus.DebugLevel, msg, args...)
}

func (l *whatsMeowLogger) Infof(msg string, args ...interface{}) {
	l.log(logrus.InfoLevel, msg, args...)
}

func (l *whatsMeowLogger) Warnf(msg string, args ...interface{}) {
	l.log(logrus.WarnLevel, msg, args...)
}

func (l *whatsMeowLogger) Errorf(msg string, args ...interface{}) {
	l.log(logrus.ErrorLevel, msg, args...)
}

func (l *whatsMeowLogger) Sub(module string) waLog.Logger {
	parent, _ := l.entry.Data["module"].(string)
	return &whatsMeowLogger{
		entry: logger.WithField("module", parent+"/"+module),
		level: l.level,
	}
}
