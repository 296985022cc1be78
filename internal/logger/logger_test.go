package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	l, lvl, err := New("warn", "json")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, zapcore.WarnLevel, lvl.Level())
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

	lvl.SetLevel(zapcore.DebugLevel)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_Console(t *testing.T) {
	_, lvl, err := New("debug", "console")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl.Level())
}

func TestNew_Invalid(t *testing.T) {
	_, _, err := New("loud", "json")
	assert.Error(t, err)

	_, _, err = New("info", "xml")
	assert.Error(t, err)
}

func TestMust_FallsBack(t *testing.T) {
	l, lvl := Must("loud", "json")
	require.NotNil(t, l)
	assert.Equal(t, zapcore.InfoLevel, lvl.Level())
}
