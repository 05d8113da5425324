package logger_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/logger"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for in, want := range cases {
		got, err := logger.ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestGetInitializesOnFirstUse(t *testing.T) {
	l := logger.Get()
	require.NotNil(t, l)
	require.Same(t, l, logger.Get())
}
