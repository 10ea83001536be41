package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	l, err := New("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = New("loud")
	assert.Error(t, err)
}

func TestParseGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, ParseGormLevel("silent"))
	assert.Equal(t, gormlogger.Info, ParseGormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, ParseGormLevel(""))
}

func TestNamed(t *testing.T) {
	assert.NotNil(t, Named(nil, "gorm"))

	l := Named(zap.NewExample(), "gorm")
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewGormLoggerWithoutBase(t *testing.T) {
	l := NewGormLogger(nil, gormlogger.Warn)
	require.NotNil(t, l)
	assert.NotNil(t, l.LogMode(gormlogger.Info))
}
