package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/client-roster/internal/config"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/clients", "GET", 200, time.Millisecond)
	m.RecordRequest("/clients", "GET", 200, time.Millisecond)
	m.RecordError("/clients", "POST", "VALIDATION_FAILED")
	m.RecordMutation("update", "confirmed")
	m.RecordMutation("update", "failed")
	m.RecordMutation("update", "confirmed")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/clients|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/clients|POST|VALIDATION_FAILED"])
	assert.Equal(t, int64(2), snap.Mutations["update|confirmed"])
	assert.Equal(t, int64(1), snap.Mutations["update|failed"])

	var nilMetrics *Metrics
	nilMetrics.RecordMutation("create", "confirmed")
}

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Delete("/clients/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("DELETE", "/clients/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	assert.Equal(t, int64(1), metrics.Snapshot().Requests["/clients/:id|DELETE|204"])
	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/clients/abc", entries[0].ContextMap()["path"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "chatty"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}
