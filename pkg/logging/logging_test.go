package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		enabled zap.AtomicLevel
		wantErr bool
	}{
		{name: "json info", level: "info", format: "json", enabled: zap.NewAtomicLevelAt(zap.InfoLevel)},
		{name: "console debug", level: "debug", format: "console", enabled: zap.NewAtomicLevelAt(zap.DebugLevel)},
		{name: "default format", level: "warn", format: "", enabled: zap.NewAtomicLevelAt(zap.WarnLevel)},
		{name: "bad level", level: "loud", format: "json", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.enabled.Level()))
			assert.False(t, l.Core().Enabled(tt.enabled.Level()-1))
		})
	}
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, GormLevel("info"))
	assert.Equal(t, gormlogger.Warn, GormLevel("warn"))
	assert.Equal(t, gormlogger.Error, GormLevel("error"))
	assert.Equal(t, gormlogger.Silent, GormLevel("fatal"))
	assert.Equal(t, gormlogger.Warn, GormLevel("nonsense"))
}
