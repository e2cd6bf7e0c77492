package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		enabled       zap.AtomicLevel
		wantErr       bool
	}{
		{level: "info", format: "json", enabled: zap.NewAtomicLevelAt(zap.InfoLevel)},
		{level: "debug", format: "console", enabled: zap.NewAtomicLevelAt(zap.DebugLevel)},
		{level: "warn", format: "", enabled: zap.NewAtomicLevelAt(zap.WarnLevel)},
		{level: "loud", format: "json", wantErr: true},
		{level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			lvl := tt.enabled.Level()
			assert.True(t, logger.Core().Enabled(lvl))
			if lvl > zap.DebugLevel {
				assert.False(t, logger.Core().Enabled(lvl-1))
			}
		})
	}
}
