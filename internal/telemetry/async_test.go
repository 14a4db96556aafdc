package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xboybx/Authentication-System/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
	delay   time.Duration
	gotCtx  context.Context
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	m.gotCtx = ctx
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events...)
}

func waitForEvents(t *testing.T, m *mockEventEmitter, n int) []*domain.Event {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ev := m.getEvents(); len(ev) >= n {
			return ev
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d events before deadline, got %d", n, len(m.getEvents()))
	return nil
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	EmitAsync(nil, nil, &domain.Event{EventType: "x"})

	emitter := &mockEventEmitter{}
	EmitAsync(emitter, nil, nil)
	time.Sleep(10 * time.Millisecond)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{}
	event := &domain.Event{UserID: "user-1", EventType: domain.EventLoginSuccess, Source: "auth"}

	EmitAsync(emitter, zap.NewNop(), event)

	events := waitForEvents(t, emitter, 1)
	if events[0] != event {
		t.Error("emitted event is not the one passed in")
	}
	emitter.mu.Lock()
	_, hasDeadline := emitter.gotCtx.Deadline()
	emitter.mu.Unlock()
	if !hasDeadline {
		t.Error("emit context should carry a timeout")
	}
}

func TestEmitAsync_ErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	emitter := &mockEventEmitter{emitErr: errors.New("kafka down")}

	EmitAsync(emitter, zap.New(core), &domain.Event{EventType: domain.EventLogout})

	waitForEvents(t, emitter, 1)
	deadline := time.Now().Add(time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logs.FilterMessage("telemetry: async emit failed").Len() != 1 {
		t.Errorf("expected one failure log, got %d entries", logs.Len())
	}
}

func TestShutdownDrainDuration(t *testing.T) {
	if ShutdownDrainDuration < emitTimeout {
		t.Errorf("ShutdownDrainDuration %v < emitTimeout %v", ShutdownDrainDuration, emitTimeout)
	}
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	a := &mockEventEmitter{}
	b := &mockEventEmitter{emitErr: errors.New("b failed")}
	m := Multi(a, nil, b)

	err := m.Emit(context.Background(), &domain.Event{EventType: domain.EventTokenRefreshed})
	if err == nil || err.Error() != "b failed" {
		t.Errorf("Multi.Emit err = %v, want b failed", err)
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Errorf("events a=%d b=%d, want 1 each", len(a.getEvents()), len(b.getEvents()))
	}
	if err := Multi().Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("empty Multi.Emit: %v", err)
	}
}
