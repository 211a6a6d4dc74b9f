package publish

import (
	"testing"
	"time"

	"github.com/boardscout/boardscout/internal/testutil"
)

func TestNewMQTTRequiresBroker(t *testing.T) {
	if _, err := NewMQTT(MQTTConfig{}, testutil.Logger()); err == nil {
		t.Error("NewMQTT() error = nil with empty broker, want error")
	}
}

func TestNewMQTTUnreachableBroker(t *testing.T) {
	cfg := MQTTConfig{
		Broker:  "tcp://127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	}
	if _, err := NewMQTT(cfg, testutil.Logger()); err == nil {
		t.Error("NewMQTT() error = nil for unreachable broker, want error")
	}
}
