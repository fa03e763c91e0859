package mannito

import (
	"errors"
	"testing"

	"github.com/nerrad567/mannito-bridge/internal/infrastructure/config"
)

func TestParseExternalReading(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantState string
		wantAttr  bool
		wantErr   bool
	}{
		{"bare number", "21.5", "21.5", false, false},
		{"bare integer", " 415\n", "415", false, false},
		{"bare text", "on", "on", false, false},
		{"json string", `"cloudy"`, "cloudy", false, false},
		{"json bool", "true", "true", false, false},
		{"object", `{"state": 12.5, "attributes": {"unit": "°C"}}`, "12.5", true, false},
		{"object string state", `{"state": "unknown"}`, "unknown", false, false},
		{"object without state", `{"attributes": {}}`, "", true, false},
		{"empty", "  ", "", false, true},
		{"broken object", `{"state":`, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExternalReading([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidReading) {
					t.Errorf("error = %v, want ErrInvalidReading", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseExternalReading() error = %v", err)
			}
			if got.State != tt.wantState {
				t.Errorf("State = %q, want %q", got.State, tt.wantState)
			}
			if (got.Attributes != nil) != tt.wantAttr {
				t.Errorf("Attributes = %v, want present=%v", got.Attributes, tt.wantAttr)
			}
		})
	}
}

func TestExternalSensors_Collect(t *testing.T) {
	client := newMockMQTT()
	ext := NewExternalSensors(client, 1, []config.ExternalSensorConfig{
		{ID: "outside_temp", Topic: "weather/temp"},
		{ID: "outside_temp_copy", Topic: "weather/temp"},
		{ID: "outside_rh", Topic: "weather/rh"},
	})
	if err := ext.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := ext.ExternalReadings(); len(got) != 0 {
		t.Errorf("readings before any message = %v, want empty", got)
	}

	if err := client.deliver("weather/temp", "weather/temp", []byte("12.5")); err != nil {
		t.Fatalf("deliver error = %v", err)
	}
	if err := client.deliver("weather/rh", "weather/rh", []byte("")); err == nil {
		t.Error("empty payload accepted")
	}

	got := ext.ExternalReadings()
	if len(got) != 2 {
		t.Fatalf("readings = %v, want both temp sensors", got)
	}
	if got["outside_temp"].State != "12.5" || got["outside_temp_copy"].State != "12.5" {
		t.Errorf("readings = %v", got)
	}
	if _, ok := ext.LastReceived("outside_temp"); !ok {
		t.Error("LastReceived() ok = false")
	}
	if _, ok := ext.LastReceived("outside_rh"); ok {
		t.Error("LastReceived() for silent sensor ok = true")
	}

	got["outside_temp"] = got["outside_rh"]
	if ext.ExternalReadings()["outside_temp"].State != "12.5" {
		t.Error("ExternalReadings() returned internal map")
	}

	ext.Stop()
	if len(client.unsubscribed) != 2 {
		t.Errorf("unsubscribed = %v, want 2 topics", client.unsubscribed)
	}
}

func TestExternalSensors_SubscribeFailure(t *testing.T) {
	client := newMockMQTT()
	client.subscribeErr = errors.New("denied")
	ext := NewExternalSensors(client, 1, []config.ExternalSensorConfig{{ID: "a", Topic: "t"}})

	if err := ext.Start(); err == nil {
		t.Error("Start() error = nil, want subscription error")
	}
}
