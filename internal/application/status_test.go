package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"defect-console/internal/domain/entity"
)

type stubStatus struct {
	calls atomic.Int32
	err   error
}

func (s *stubStatus) Fetch(context.Context) (*entity.SystemStatus, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &entity.SystemStatus{Status: "normal", CPUUsage: 10}, nil
}

func TestStatusMonitor_Poll(t *testing.T) {
	sink := &recordingSink{}
	m := NewStatusMonitor(&stubStatus{}, sink, time.Second, testLogger())

	status := m.Poll(context.Background())
	require.Equal(t, "normal", status.Status)

	events := sink.Events(entity.EventSystemStatus)
	require.Len(t, events, 1)
	require.Equal(t, 10.0, events[0].Status.CPUUsage)
}

func TestStatusMonitor_OfflineOnError(t *testing.T) {
	sink := &recordingSink{}
	m := NewStatusMonitor(&stubStatus{err: errors.New("connection refused")}, sink, time.Second, testLogger())

	require.Equal(t, "offline", m.Poll(context.Background()).Status)
}

func TestStatusMonitor_RunStopsOnCancel(t *testing.T) {
	src := &stubStatus{}
	m := NewStatusMonitor(src, &recordingSink{}, 5*time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return src.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
