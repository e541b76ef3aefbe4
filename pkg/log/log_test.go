package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "1234567xxxx", MaskPhone("12345678901"))
	assert.Equal(t, "1234567xxxx@s.whatsapp.net", MaskPhone("12345678901@s.whatsapp.net"))
	assert.Equal(t, "123", MaskPhone("123"))
	assert.Equal(t, "", MaskPhone(""))
}

func TestWhatsMeowLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	original := logger.Out
	originalLevel := logger.GetLevel()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logger.SetOutput(original)
		logger.SetLevel(originalLevel)
	})

	waLogger := WhatsMeow("Client", "warn")
	waLogger.Infof("hidden %d", 1)
	waLogger.Warnf("shown %d", 2)
	waLogger.Sub("Socket").Errorf("nested %s", "error")

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "nested error")
	assert.Contains(t, out, "whatsmeow/Client/Socket")
}
