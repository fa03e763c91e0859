package controller

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDeviceStatuses_SchemaFields(t *testing.T) {
	body := []byte(`{"devices":[
		{"device_id":"FAN1","deviceId":"OLD1","state":"on","powerlevel":50,"level":9},
		{"deviceId":"OLD2","state":0,"level":"12"},
		{"state":true}
	]}`)

	tests := []struct {
		name      string
		schema    Schema
		wantIDs   []string
		wantLevel []int
	}{
		{"v2", SchemaV2, []string{"FAN1"}, []int{50}},
		{"v1", SchemaV1, []string{"OLD1", "OLD2"}, []int{9, 12}},
		{"zero schema means v2", Schema{}, []string{"FAN1"}, []int{50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bulk, err := DecodeBulkState(body, tt.schema)
			if err != nil {
				t.Fatalf("DecodeBulkState() error = %v", err)
			}
			got, err := bulk.DeviceStatuses()
			if err != nil {
				t.Fatalf("DeviceStatuses() error = %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d (%+v)", len(got), len(tt.wantIDs), got)
			}
			for i, st := range got {
				if st.ID != tt.wantIDs[i] {
					t.Errorf("[%d].ID = %q, want %q", i, st.ID, tt.wantIDs[i])
				}
				if st.PowerLevel == nil || *st.PowerLevel != tt.wantLevel[i] {
					t.Errorf("[%d].PowerLevel = %v, want %d", i, st.PowerLevel, tt.wantLevel[i])
				}
			}
		})
	}
}

func TestDeviceStatuses_LenientState(t *testing.T) {
	tests := []struct {
		raw  string
		want *bool
	}{
		{`true`, ptr(true)},
		{`false`, ptr(false)},
		{`"on"`, ptr(true)},
		{`"OFF"`, ptr(false)},
		{`1`, ptr(true)},
		{`0`, ptr(false)},
		{`"maybe"`, nil},
		{`null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			bulk, err := DecodeBulkState([]byte(`{"devices":[{"device_id":"D","state":`+tt.raw+`}]}`), SchemaV2)
			if err != nil {
				t.Fatalf("DecodeBulkState() error = %v", err)
			}
			got, err := bulk.DeviceStatuses()
			if err != nil {
				t.Fatalf("DeviceStatuses() error = %v", err)
			}
			switch {
			case tt.want == nil && got[0].State != nil:
				t.Errorf("State = %v, want absent", *got[0].State)
			case tt.want != nil && (got[0].State == nil || *got[0].State != *tt.want):
				t.Errorf("State = %v, want %v", got[0].State, *tt.want)
			}
		})
	}
}

func TestSensorReadings(t *testing.T) {
	bulk, err := DecodeBulkState([]byte(`{"sensors":[
		{"id":"TEMP1","sensor_value":"21.3","is_valid":true,"unit":"°C"},
		{"id":"EC1","sensor_value":1.85,"is_valid":true},
		{"id":"PH1","sensor_value":"7.0"},
		{"id":"CO2","is_valid":false}
	]}`), SchemaV2)
	if err != nil {
		t.Fatalf("DecodeBulkState() error = %v", err)
	}
	got, err := bulk.SensorReadings()
	if err != nil {
		t.Fatalf("SensorReadings() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}

	if *got[0].Value != "21.3" || !got[0].Valid || got[0].Unit != "°C" {
		t.Errorf("TEMP1 = %+v", got[0])
	}
	if *got[1].Value != "1.85" {
		t.Errorf("EC1 value = %q, want %q", *got[1].Value, "1.85")
	}
	if got[2].Valid {
		t.Error("PH1 without is_valid reported valid")
	}
	if got[3].Value != nil {
		t.Errorf("CO2 value = %q, want absent", *got[3].Value)
	}
}

func TestSections_MissingAndMalformed(t *testing.T) {
	bulk, err := DecodeBulkState([]byte(`{"devices":null}`), SchemaV2)
	if err != nil {
		t.Fatalf("DecodeBulkState() error = %v", err)
	}
	if got, err := bulk.DeviceStatuses(); err != nil || got != nil {
		t.Errorf("null devices = %v, %v, want nil, nil", got, err)
	}
	if got, err := bulk.SensorReadings(); err != nil || got != nil {
		t.Errorf("missing sensors = %v, %v, want nil, nil", got, err)
	}

	bulk, err = DecodeBulkState([]byte(`{"devices":{"a":1},"sensors":"x"}`), SchemaV2)
	if err != nil {
		t.Fatalf("DecodeBulkState() error = %v", err)
	}
	if _, err := bulk.DeviceStatuses(); !errors.Is(err, ErrDecode) {
		t.Errorf("DeviceStatuses() error = %v, want ErrDecode", err)
	}
	if _, err := bulk.SensorReadings(); !errors.Is(err, ErrDecode) {
		t.Errorf("SensorReadings() error = %v, want ErrDecode", err)
	}

	if _, err := DecodeBulkState([]byte(`[1,2]`), SchemaV2); !errors.Is(err, ErrDecode) {
		t.Errorf("DecodeBulkState(array) error = %v, want ErrDecode", err)
	}
}

func TestSlotStatuses(t *testing.T) {
	bulk, err := DecodeBulkState([]byte(`{"slots":[
		{"name":"Default","parameters":[{"parameter":"AIR_TEMPERATURE","value":20},{"parameter":"AIR_HUMIDITY","value":"65.5"}]},
		{"name":"Night","index":4,"parameters":[]},
		{"name":"Empty"}
	]}`), SchemaV2)
	if err != nil {
		t.Fatalf("DecodeBulkState() error = %v", err)
	}
	slots, err := bulk.SlotStatuses()
	if err != nil {
		t.Fatalf("SlotStatuses() error = %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("len = %d, want 3", len(slots))
	}
	if slots[0].Index != 0 || slots[1].Index != 4 || slots[2].Index != 2 {
		t.Errorf("indexes = %d,%d,%d, want 0,4,2", slots[0].Index, slots[1].Index, slots[2].Index)
	}
	if len(slots[0].Parameters) != 2 || *slots[0].Parameters[1].Value != 65.5 {
		t.Errorf("Default parameters = %+v", slots[0].Parameters)
	}
}

func TestSlotStatuses_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not a list", `{"slots":"x"}`},
		{"name not string", `{"slots":[{"name":5}]}`},
		{"parameters not list", `{"slots":[{"name":"A","parameters":{}}]}`},
		{"parameter not object", `{"slots":[{"name":"A","parameters":[1]}]}`},
		{"parameter missing", `{"slots":[{"name":"A","parameters":[{"value":1}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bulk, err := DecodeBulkState([]byte(tt.body), SchemaV2)
			if err != nil {
				t.Fatalf("DecodeBulkState() error = %v", err)
			}
			if _, err := bulk.SlotStatuses(); !errors.Is(err, ErrDecode) {
				t.Errorf("SlotStatuses() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestText_Unmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want Text
	}{
		{`"abc"`, "abc"},
		{`123`, "123"},
		{`1.5`, "1.5"},
		{`true`, "true"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var got struct {
			V Text `json:"v"`
		}
		if err := json.Unmarshal([]byte(`{"v":`+tt.raw+`}`), &got); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.raw, err)
			continue
		}
		if got.V != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.raw, got.V, tt.want)
		}
	}
}

func TestFlag_Unmarshal(t *testing.T) {
	tests := []struct {
		raw  string
		want Flag
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`"false"`, false},
		{`"Yes"`, true},
		{`1`, true},
		{`0`, false},
		{`"1"`, true},
		{`null`, false},
		{`{"pending":true}`, false},
		{`[]`, false},
	}
	for _, tt := range tests {
		var got struct {
			V Flag `json:"v"`
		}
		if err := json.Unmarshal([]byte(`{"v":`+tt.raw+`}`), &got); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.raw, err)
			continue
		}
		if got.V != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.raw, got.V, tt.want)
		}
	}
}

func TestDecodeBulkState_MistypedMetadata(t *testing.T) {
	body := []byte(`{
		"devices":[{"device_id":"FAN1","state":true}],
		"uptime":{"s":5},
		"version":2,
		"deviceId":null,
		"serialnumber":12345,
		"firmwareUpdateAvailable":"false"
	}`)
	bulk, err := DecodeBulkState(body, SchemaV2)
	if err != nil {
		t.Fatalf("DecodeBulkState() error = %v", err)
	}
	if bulk.FirmwareUpdateAvailable || bulk.Version != "2" || bulk.SerialNumber != "12345" {
		t.Errorf("metadata = %+v", bulk)
	}
	devices, err := bulk.DeviceStatuses()
	if err != nil {
		t.Fatalf("DeviceStatuses() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "FAN1" {
		t.Errorf("devices = %+v, want FAN1", devices)
	}
}

func TestSchemaBodies(t *testing.T) {
	if got := SchemaV2.StateBody(true)["state"]; got != true {
		t.Errorf("v2 StateBody(true) = %v, want true", got)
	}
	if got := SchemaV1.StateBody(true)["state"]; got != "on" {
		t.Errorf("v1 StateBody(true) = %v, want on", got)
	}
	if got := SchemaV2.PowerLevelBody(7)["powerlevel"]; got != 7 {
		t.Errorf("v2 PowerLevelBody = %v, want 7", got)
	}
	if got := SchemaV1.PowerLevelBody(7)["level"]; got != 7 {
		t.Errorf("v1 PowerLevelBody = %v, want 7", got)
	}
}

func ptr[T any](v T) *T { return &v }
