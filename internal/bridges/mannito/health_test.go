package mannito

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/mannito-bridge/internal/coordinator"
	"github.com/nerrad567/mannito-bridge/internal/device"
)

const healthTopic = "mannito/health/10.0.0.5"

func lastHealth(t *testing.T, pub *mockMQTT) HealthMessage {
	t.Helper()
	msgs := pub.messagesOn(healthTopic)
	if len(msgs) == 0 {
		t.Fatal("no health message published")
	}
	last := msgs[len(msgs)-1]
	if !last.retained || last.qos != 1 {
		t.Errorf("health retained=%v qos=%d, want retained qos 1", last.retained, last.qos)
	}
	var msg HealthMessage
	if err := json.Unmarshal(last.payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return msg
}

func TestHealthReporterDefaultInterval(t *testing.T) {
	hr := NewHealthReporter(HealthReporterConfig{Host: testHost})
	if hr.interval != 30*time.Second {
		t.Errorf("default interval = %v, want 30s", hr.interval)
	}
}

func TestHealthReporter_Status(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		last       *coordinator.RefreshResult
		wantStatus HealthStatus
		wantReason string
	}{
		{"mqtt disconnected", false, &coordinator.RefreshResult{}, HealthDegraded, "MQTT disconnected"},
		{"no refresh yet", true, nil, HealthStarting, "waiting for first refresh"},
		{"refresh failed", true, &coordinator.RefreshResult{Err: coordinator.ErrUpdateFailed}, HealthDegraded, "controller refresh failed"},
		{"healthy", true, &coordinator.RefreshResult{Stats: device.Stats{Devices: 2, AvailableDevices: 2}}, HealthHealthy, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := newMockMQTT()
			pub.setConnected(tt.connected)
			refreshes := &mockRefreshes{}
			if tt.last != nil {
				refreshes.set(*tt.last)
			}
			hr := NewHealthReporter(HealthReporterConfig{Host: testHost, Version: "1.2.3", Publisher: pub, Refreshes: refreshes})

			if err := hr.PublishNow(); err != nil {
				t.Fatalf("PublishNow() error = %v", err)
			}
			msg := lastHealth(t, pub)
			if msg.Status != tt.wantStatus || msg.Reason != tt.wantReason {
				t.Errorf("status = %q (%q), want %q (%q)", msg.Status, msg.Reason, tt.wantStatus, tt.wantReason)
			}
			if msg.Version != "1.2.3" || msg.Host != testHost {
				t.Errorf("identity = %q/%q", msg.Host, msg.Version)
			}
			if tt.last == nil && msg.Controller != nil {
				t.Error("controller status present before first refresh")
			}
		})
	}
}

func TestHealthReporter_ControllerDetails(t *testing.T) {
	pub := newMockMQTT()
	refreshes := &mockRefreshes{}
	refreshes.set(coordinator.RefreshResult{
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Err:       errors.New("boom"),
		Stats:     device.Stats{Devices: 3},
	})
	hr := NewHealthReporter(HealthReporterConfig{Host: testHost, Publisher: pub, Refreshes: refreshes})

	_ = hr.PublishNow()
	msg := lastHealth(t, pub)
	if msg.Controller == nil || msg.Controller.Reachable || msg.Controller.LastError != "boom" {
		t.Errorf("Controller = %+v", msg.Controller)
	}
	if msg.Controller.DurationSeconds != 1.5 {
		t.Errorf("DurationSeconds = %v, want 1.5", msg.Controller.DurationSeconds)
	}
	if msg.Entities == nil || msg.Entities.Devices != 3 {
		t.Errorf("Entities = %+v", msg.Entities)
	}
}

func TestHealthReporter_StartStop(t *testing.T) {
	pub := newMockMQTT()
	hr := NewHealthReporter(HealthReporterConfig{Host: testHost, Publisher: pub, Interval: time.Hour})

	if err := hr.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}
	if got := lastHealth(t, pub).Status; got != HealthStarting {
		t.Errorf("status = %q, want starting", got)
	}

	hr.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for len(pub.messagesOn(healthTopic)) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := lastHealth(t, pub).Status; got != HealthHealthy {
		t.Errorf("initial status = %q, want healthy", got)
	}

	hr.Stop()
	hr.Stop()
	if got := lastHealth(t, pub).Status; got != HealthStopping {
		t.Errorf("final status = %q, want stopping", got)
	}
}

func TestHealthReporter_NilPublisher(t *testing.T) {
	hr := NewHealthReporter(HealthReporterConfig{Host: testHost})
	if err := hr.PublishNow(); err != nil {
		t.Errorf("PublishNow() error = %v, want nil", err)
	}
}

func TestHealthReporter_LWT(t *testing.T) {
	hr := NewHealthReporter(HealthReporterConfig{Host: testHost})

	if hr.LWTTopic() != healthTopic {
		t.Errorf("LWTTopic() = %q, want %q", hr.LWTTopic(), healthTopic)
	}
	payload, err := hr.LWTPayload()
	if err != nil {
		t.Fatalf("LWTPayload() error = %v", err)
	}
	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal LWT: %v", err)
	}
	if msg.Status != HealthOffline || msg.Host != testHost {
		t.Errorf("LWT = %+v", msg)
	}
}
