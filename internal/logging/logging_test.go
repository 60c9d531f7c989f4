package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: " error ", want: slog.LevelError},
		{in: "verbose", want: slog.LevelInfo, wantErr: true},
	}

	for _, tc := range tcs {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLevel(tc.in)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDefaultLevelIsInfo(t *testing.T) {
	t.Parallel()

	level, err := ParseLevel(DefaultLevel)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestNewTagsRunIDAndFiltersLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithRunID(&buf, slog.LevelWarn, "run_fixed")

	logger.Info("hidden")
	logger.Warn("shown", "repo", "web-app")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "run_id=run_fixed")
	assert.Contains(t, out, "repo=web-app")
}

func TestNewRunID(t *testing.T) {
	t.Parallel()

	first := NewRunID()
	second := NewRunID()
	assert.NotEqual(t, first, second)

	require.True(t, strings.HasPrefix(first, "run_"))
	_, err := ulid.Parse(strings.ToUpper(strings.TrimPrefix(first, "run_")))
	assert.NoError(t, err)
}
