package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		wantJSON  bool
		wantDebug bool
	}{
		{name: "local", env: "local", wantJSON: false, wantDebug: true},
		{name: "dev", env: "dev", wantJSON: true, wantDebug: true},
		{name: "prod", env: "prod", wantJSON: true, wantDebug: false},
		{name: "неизвестное окружение", env: "whatever", wantJSON: false, wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(tt.env, &buf)

			assert.Equal(t, tt.wantDebug, log.Enabled(context.Background(), slog.LevelDebug))

			log.Info("hello", slog.String("k", "v"))
			if tt.wantJSON {
				var m map[string]any
				require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
				assert.Equal(t, "hello", m["msg"])
			} else {
				assert.Contains(t, buf.String(), "msg=hello")
			}
		})
	}
}
