package api

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

// provisionDevice signs up an owner, registers a device and returns the
// device id together with its current config id.
func provisionDevice(t *testing.T, ts *testServer, serialNo string) (int64, int64) {
	t.Helper()

	accessToken := ts.signup(t, "alice@example.com", "alice", "pw123")
	deviceID := ts.createDevice(t, accessToken, serialNo, "Basil")

	status, body := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/devices/%d/settings", deviceID), nil, accessToken)
	if status != http.StatusOK {
		t.Fatalf("get settings status = %d, body = %v", status, body)
	}
	settings, ok := body["settings"].(map[string]any)
	if !ok {
		t.Fatalf("settings response missing settings: %v", body)
	}
	configID, _ := settings["id"].(float64)
	if configID == 0 {
		t.Fatalf("settings response missing config id: %v", body)
	}
	return deviceID, int64(configID)
}

func TestFirmwareGetSettings(t *testing.T) {
	ts := newTestServer(t)
	provisionDevice(t, ts, "SN-0001")

	status, body := ts.do(t, http.MethodGet, "/api/v1/settings?serial=SN-0001", nil, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}

	device, ok := body["device"].(map[string]any)
	if !ok {
		t.Fatalf("response missing device: %v", body)
	}
	if device["serial_no"] != "SN-0001" {
		t.Fatalf("serial_no = %v, want SN-0001", device["serial_no"])
	}

	settings, ok := body["settings"].(map[string]any)
	if !ok {
		t.Fatalf("response missing settings: %v", body)
	}
	for _, field := range []string{"config_id", "moisture_threshold", "water_volume_ml", "frequency_min", "recorded_on"} {
		if _, present := settings[field]; !present {
			t.Fatalf("settings missing %q: %v", field, settings)
		}
	}
	if got := settings["moisture_threshold"].(float64); got != 50 {
		t.Fatalf("moisture_threshold = %v, want 50", got)
	}
}

func TestFirmwareGetSettingsUnknownSerial(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/api/v1/settings?serial=UNKNOWN", nil, "")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if body["message"] != "404. Device not found :(" {
		t.Fatalf("message = %q, want the literal firmware body", body["message"])
	}
}

func TestFirmwareCreateAndFetchReading(t *testing.T) {
	ts := newTestServer(t)
	deviceID, configID := provisionDevice(t, ts, "SN-0001")

	payload := map[string]any{
		"device_id":   deviceID,
		"config_id":   configID,
		"moisture":    41.5,
		"temperature": 22.1,
		"humidity":    55.0,
		"watered":     true,
		"recorded_on": "2026-03-01T12:00:00.000000",
	}

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/readings", strings.NewReader(mustJSON(t, payload)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create reading status = %d, want 201", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	if !strings.HasPrefix(location, "/api/v1/readings?id=") {
		t.Fatalf("Location = %q, want /api/v1/readings?id=<id>", location)
	}

	status, body := ts.do(t, http.MethodGet, location, nil, "")
	if status != http.StatusOK {
		t.Fatalf("get reading status = %d, body = %v", status, body)
	}
	if got := body["moisture"].(float64); got != 41.5 {
		t.Fatalf("moisture = %v, want 41.5", got)
	}
	if body["watered"] != true {
		t.Fatalf("watered = %v, want true", body["watered"])
	}
	if body["recorded_on"] != "2026-03-01T12:00:00.000000" {
		t.Fatalf("recorded_on = %v, want the microsecond layout round-tripped", body["recorded_on"])
	}
	if body["temperature"] == nil || body["humidity"] == nil {
		t.Fatalf("reading lost optional fields: %v", body)
	}
}

func TestFirmwareCreateReadingNullSensors(t *testing.T) {
	ts := newTestServer(t)
	deviceID, configID := provisionDevice(t, ts, "SN-0001")

	status, body := ts.do(t, http.MethodPost, "/api/v1/readings", map[string]any{
		"device_id":   deviceID,
		"config_id":   configID,
		"moisture":    nil,
		"temperature": nil,
		"humidity":    nil,
		"watered":     false,
		"recorded_on": "2026-03-01T12:00:00.000000",
	}, "")
	if status != http.StatusCreated {
		t.Fatalf("status = %d, body = %v", status, body)
	}
}

func TestFirmwareCreateReadingUnknownDevice(t *testing.T) {
	ts := newTestServer(t)
	_, configID := provisionDevice(t, ts, "SN-0001")

	status, body := ts.do(t, http.MethodPost, "/api/v1/readings", map[string]any{
		"device_id":   9999,
		"config_id":   configID,
		"watered":     false,
		"recorded_on": "2026-03-01T12:00:00.000000",
	}, "")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if body["message"] != "404. Device not found :(" {
		t.Fatalf("message = %q, want the literal firmware body", body["message"])
	}
}

func TestFirmwareCreateReadingUnknownConfig(t *testing.T) {
	ts := newTestServer(t)
	deviceID, _ := provisionDevice(t, ts, "SN-0001")

	status, body := ts.do(t, http.MethodPost, "/api/v1/readings", map[string]any{
		"device_id":   deviceID,
		"config_id":   9999,
		"watered":     false,
		"recorded_on": "2026-03-01T12:00:00.000000",
	}, "")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if body["message"] != "404. Config not found :(" {
		t.Fatalf("message = %q, want the literal firmware body", body["message"])
	}
}

func TestFirmwareCreateReadingBadTimestamp(t *testing.T) {
	ts := newTestServer(t)
	deviceID, configID := provisionDevice(t, ts, "SN-0001")

	status, body := ts.do(t, http.MethodPost, "/api/v1/readings", map[string]any{
		"device_id":   deviceID,
		"config_id":   configID,
		"watered":     false,
		"recorded_on": "yesterday at noon",
	}, "")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %v", status, body)
	}
}

func TestFirmwareGetReadingNotFound(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/readings?id=9999", "/api/v1/readings?id=abc", "/api/v1/readings"} {
		status, body := ts.do(t, http.MethodGet, path, nil, "")
		if status != http.StatusNotFound {
			t.Fatalf("%s: status = %d, want 404", path, status)
		}
		if body["message"] != "404. Record not found :(" {
			t.Fatalf("%s: message = %q, want the literal firmware body", path, body["message"])
		}
	}
}

func TestOwnerReadingsList(t *testing.T) {
	ts := newTestServer(t)
	accessToken := ts.signup(t, "alice@example.com", "alice", "pw123")
	deviceID := ts.createDevice(t, accessToken, "SN-0001", "Basil")

	status, body := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/devices/%d/settings", deviceID), nil, accessToken)
	if status != http.StatusOK {
		t.Fatalf("get settings status = %d, body = %v", status, body)
	}
	configID := int64(body["settings"].(map[string]any)["id"].(float64))

	for i := 0; i < 3; i++ {
		status, body := ts.do(t, http.MethodPost, "/api/v1/readings", map[string]any{
			"device_id":   deviceID,
			"config_id":   configID,
			"moisture":    float64(40 + i),
			"watered":     false,
			"recorded_on": fmt.Sprintf("2026-03-01T12:00:0%d.000000", i),
		}, "")
		if status != http.StatusCreated {
			t.Fatalf("create reading #%d status = %d, body = %v", i, status, body)
		}
	}

	readings := ts.listReadings(t, accessToken, fmt.Sprintf("/api/v1/devices/%d/readings", deviceID))
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}

	readings = ts.listReadings(t, accessToken, fmt.Sprintf("/api/v1/devices/%d/readings?limit=2", deviceID))
	if len(readings) != 2 {
		t.Fatalf("got %d readings with limit=2, want 2", len(readings))
	}

	status, _ = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/devices/%d/readings?limit=0", deviceID), nil, accessToken)
	if status != http.StatusBadRequest {
		t.Fatalf("limit=0 status = %d, want 400", status)
	}
}
