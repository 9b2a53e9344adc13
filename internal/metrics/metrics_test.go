package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAppointment("create", nil)
	m.ObserveAppointment("create", apperr.Conflict("slot_not_available", "taken"))
	m.ObserveAppointment("create", errors.New("boom"))
	m.ObserveSweep("complete-appointments", "ok", 3, 20*time.Millisecond)
	m.ChatConnected()
	m.ChatConnected()
	m.ChatDisconnected()
	m.ChatMessage()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.appointmentOps.WithLabelValues("create", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.appointmentOps.WithLabelValues("create", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepItems.WithLabelValues("complete-appointments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chatConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chatMessages))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAppointment("cancel", nil)
	m.ObserveSweep("purge-chats", "error", 0, time.Second)
	m.ChatConnected()
	m.ChatDisconnected()
	m.ChatMessage()
}
