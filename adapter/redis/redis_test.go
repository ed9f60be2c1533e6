package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/mk0link/adapter"
	"github.com/justapithecus/mk0link/types"
)

func testEvent() *adapter.LogLineEvent {
	meta := &types.SessionMeta{SessionID: "sess-001", Port: "/dev/ttyACM0"}
	line := types.LogLine{
		Level:    types.LogLevelInfo,
		Hash:     17912518899394503216,
		Template: "Volume set to %u%%",
		Text:     "Volume set to 42%",
		Version:  "1.2.0",
		Values:   []any{uint32(42)},
	}
	return adapter.NewLogLineEvent(meta, line, time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC))
}

// asyncReceive reads one message from sub on its own goroutine. Must be
// called before Publish since miniredis delivers synchronously.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func TestPublish_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != DefaultChannel {
		t.Errorf("channel = %q, want %q", msg.Channel, DefaultChannel)
	}

	var got adapter.LogLineEvent
	if err := json.Unmarshal([]byte(msg.Message), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventType != adapter.EventType {
		t.Errorf("event_type = %q, want %q", got.EventType, adapter.EventType)
	}
	if got.Hash != "17912518899394503216" {
		t.Errorf("hash = %q, want 17912518899394503216", got.Hash)
	}
	if got.Message != "Volume set to 42%" {
		t.Errorf("message = %q", got.Message)
	}
	if got.Level != "INFO" {
		t.Errorf("level = %q, want INFO", got.Level)
	}
	if got.SessionID != "sess-001" || got.Port != "/dev/ttyACM0" {
		t.Errorf("session = %q/%q", got.SessionID, got.Port)
	}
	if got.Timestamp != "2026-10-17T12:00:00Z" {
		t.Errorf("timestamp = %q", got.Timestamp)
	}
}

func TestPublish_CustomChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: "bench:rig-3"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.Channel() != "bench:rig-3" {
		t.Errorf("Channel() = %q, want bench:rig-3", a.Channel())
	}

	sub := mr.NewSubscriber()
	sub.Subscribe("bench:rig-3")
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if msg := waitMessage(t, ch); msg.Channel != "bench:rig-3" {
		t.Errorf("channel = %q, want bench:rig-3", msg.Channel)
	}
}

func TestPublish_ForwarderDelivers(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	f := adapter.NewForwarder(a, adapter.ForwarderOptions{Name: "redis"})
	f.HandleLine(types.LogLine{Level: types.LogLevelError, Hash: 12, Template: "Boot failed", Text: "Boot failed"})

	msg := waitMessage(t, ch)
	var got adapter.LogLineEvent
	if err := json.Unmarshal([]byte(msg.Message), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Level != "ERROR" || got.Hash != "12" {
		t.Errorf("got level=%q hash=%q, want ERROR/12", got.Level, got.Hash)
	}
	if err := f.Close(t.Context()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 2, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a.retry.Backoff = time.Millisecond
	defer func() { _ = a.Close() }()

	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestPublish_StreamAppends(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: "mk0:log", Stream: true, MaxLen: 100})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	for range 2 {
		if err := a.Publish(t.Context(), testEvent()); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	rc := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = rc.Close() }()

	msgs, err := rc.XRange(t.Context(), "mk0:log", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stream length = %d, want 2", len(msgs))
	}
	if msgs[0].Values["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", msgs[0].Values["level"])
	}
	raw, _ := msgs[0].Values["event"].(string)
	var got adapter.LogLineEvent
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if got.Message != "Volume set to 42%" {
		t.Errorf("message = %q, want %q", got.Message, "Volume set to 42%")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty url", Config{}},
		{"invalid url", Config{URL: "not-a-redis-url"}},
		{"negative retries", Config{URL: "redis://localhost:6379", Retries: -1}},
		{"negative max_len", Config{URL: "redis://localhost:6379", Stream: true, MaxLen: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.config.Channel != DefaultChannel {
		t.Errorf("channel = %q, want %q", a.config.Channel, DefaultChannel)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", a.config.Timeout, DefaultTimeout)
	}
}

func TestClose_ClosesConnection(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after close")
	}
}
