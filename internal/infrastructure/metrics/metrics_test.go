package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// gatheredValue returns the value of the first sample of a metric family
// whose labels include all of want.
func gatheredValue(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			match := true
			for k, v := range want {
				if labels[k] != v {
					match = false
				}
			}
			if !match {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s %v not found", name, want)
	return 0
}

func TestRecorder(t *testing.T) {
	m := New()
	ch := rule.NewChannel("lamp", "on")

	m.ValueAccepted(ch)
	m.ValueAccepted(ch)
	m.ValueRejected(ch)
	m.AutomationFired()
	m.RequestDispatched(device.RequestConnect, nil)
	m.RequestDispatched(device.RequestUpdate, errors.New("timeout"))
	m.AutomationsActive(3)

	assert.Equal(t, 2.0, gatheredValue(t, m, "graylogic_hub_values_accepted_total", map[string]string{"device": "lamp"}))
	assert.Equal(t, 1.0, gatheredValue(t, m, "graylogic_hub_values_rejected_total", map[string]string{"device": "lamp"}))
	assert.Equal(t, 1.0, gatheredValue(t, m, "graylogic_hub_automations_fired_total", nil))
	assert.Equal(t, 1.0, gatheredValue(t, m, "graylogic_hub_requests_dispatched_total",
		map[string]string{"kind": "connect", "status": "ok"}))
	assert.Equal(t, 1.0, gatheredValue(t, m, "graylogic_hub_requests_dispatched_total",
		map[string]string{"kind": "update", "status": "error"}))
	assert.Equal(t, 3.0, gatheredValue(t, m, "graylogic_hub_automations_active", nil))
}

func TestIngestAndSessions(t *testing.T) {
	m := New()
	m.IngestMessage("mqtt", true)
	m.IngestMessage("mqtt", false)
	m.IngestError("mqtt")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 1.0, gatheredValue(t, m, "graylogic_hub_ingest_messages_total",
		map[string]string{"source": "mqtt", "status": "accepted"}))
	assert.Equal(t, 1.0, gatheredValue(t, m, "graylogic_hub_ingest_messages_total",
		map[string]string{"source": "mqtt", "status": "rejected"}))
	assert.Equal(t, 1.0, gatheredValue(t, m, "graylogic_hub_ingest_messages_total",
		map[string]string{"source": "mqtt", "status": "invalid"}))
	assert.Equal(t, 1.0, gatheredValue(t, m, "graylogic_hub_sessions_open", nil))
}

func TestHandler(t *testing.T) {
	m := New()
	m.AutomationFired()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "graylogic_hub_automations_fired_total"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
