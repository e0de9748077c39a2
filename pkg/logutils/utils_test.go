package logutils_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/denysvitali/odi-invoices/pkg/logutils"
)

func TestSetLogger(t *testing.T) {
	defer logrus.SetFormatter(&logrus.TextFormatter{})
	defer logrus.SetLevel(logrus.InfoLevel)

	logutils.SetLoggerLevel("debug")
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	logutils.SetLoggerLevel("nonsense")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())

	logutils.SetLoggerFormat("json")
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)
	logutils.SetLoggerFormat("text")
	assert.IsType(t, &logrus.TextFormatter{}, logrus.StandardLogger().Formatter)
}
