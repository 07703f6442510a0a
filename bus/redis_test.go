package bus

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisBus(t *testing.T) *RedisBus {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	b, err := NewRedisBus(cfg)
	if err != nil {
		t.Fatalf("NewRedisBus error: %v", err)
	}
	return b
}

func TestRedisBus_Contract(t *testing.T) {
	runBusContract(t, newTestRedisBus(t))
}

func TestRedisBus_ConnectFailure(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	if _, err := NewRedisBus(cfg); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestRedisBus_IgnoresForeignPayloads(t *testing.T) {
	b := newTestRedisBus(t)
	defer b.Close()

	sub, err := b.Subscribe("raw")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Unsubscribe()

	// Published outside the envelope format, then a proper message.
	if err := b.Client().Publish(t.Context(), "raw", "not json").Err(); err != nil {
		t.Fatalf("raw publish: %v", err)
	}
	if err := b.Publish("raw", []byte("ok")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	if msg := receive(t, sub); string(msg.Data) != "ok" {
		t.Errorf("Data = %q, want ok", msg.Data)
	}
}
