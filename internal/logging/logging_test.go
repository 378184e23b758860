package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, logrus.PanicLevel, Level("silent"))
	assert.Equal(t, logrus.ErrorLevel, Level("error"))
	assert.Equal(t, logrus.WarnLevel, Level("warn"))
	assert.Equal(t, logrus.InfoLevel, Level("info"))
	assert.Equal(t, logrus.DebugLevel, Level("debug"))
	assert.Equal(t, logrus.TraceLevel, Level("trace"))
	assert.Equal(t, logrus.InfoLevel, Level("nonsense"))
}

func TestNewWritesFieldsAtLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", &buf)

	log.WithField("endpoint", "CLS").Info("hidden")
	log.WithField("endpoint", "CLS").Warn("warm-up failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "warm-up failed")
	assert.Contains(t, out, "endpoint=CLS")
}
