package logger

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("default level is info", func(t *testing.T) {
		viper.Reset()
		l, err := New()
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("debug level", func(t *testing.T) {
		viper.Reset()
		viper.Set("log.level", "debug")
		l, err := New()
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("invalid level", func(t *testing.T) {
		viper.Reset()
		viper.Set("log.level", "loud")
		_, err := New()
		assert.Error(t, err)
	})
}
