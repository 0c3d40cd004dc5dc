package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func TestNew_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithJSONFormat(), logger.WithOutput(&buf))

	tenantID := uuid.New()
	log.Info("dispatched", logger.TenantID(tenantID), logger.Channel("email"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatched", entry["msg"])
	assert.Equal(t, tenantID.String(), entry["tenant_id"])
	assert.Equal(t, "email", entry["channel"])
}

func TestNew_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestAttrs_NilSafe(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Attr{}, logger.Error(nil))
	assert.NotEqual(t, slog.Attr{}, logger.Error(errors.New("boom")))
	assert.Equal(t, slog.Attr{}, logger.ErrorCode(""))
	assert.Equal(t, "error_code", logger.ErrorCode("TIMEOUT").Key)
}
