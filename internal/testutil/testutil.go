// Package testutil provides common test utilities and helpers for MoodPipe tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/mood"
	"github.com/BTreeMap/MoodPipe/internal/store"
)

// TestingT is the subset of testing.T the helpers need. Using an interface
// keeps the helpers testable with a recording fake.
type TestingT interface {
	Helper()
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// CreateJSONRequest builds an HTTP request carrying a raw JSON body for
// handler tests. An empty body produces a bodyless request.
func CreateJSONRequest(t TestingT, method, url, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response body and validates the envelope
// status field, returning the decoded map for further assertions.
func AssertJSONResponse(t TestingT, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// MustMarshalJSON marshals an object to JSON and fails the test on error.
func MustMarshalJSON(t TestingT, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t TestingT, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

// SampleMetricsRecord returns a realistic health metrics fixture for tests
// that need extracted or provider-synced data without caring about values.
func SampleMetricsRecord() models.HealthMetricsRecord {
	return models.HealthMetricsRecord{
		Timestamp:     time.Now(),
		Steps:         9000,
		Calories:      2100,
		DistanceKM:    6.2,
		ActiveMinutes: 45,
		HeartRate:     models.HeartRateMetrics{Current: 72, Resting: 58, Variability: 55},
		Sleep: models.SleepMetrics{
			Duration: 440,
			Quality:  80,
			Stages:   models.SleepStages{Deep: 95, Light: 260, REM: 85},
		},
		Confidence: 0.9,
	}
}

// SeedMoodEntries stores one mood entry per score against the user, spaced an
// hour apart with the last score being the most recent.
func SeedMoodEntries(t TestingT, st store.Store, userID string, scores ...int) {
	t.Helper()
	base := time.Now().Add(-time.Duration(len(scores)) * time.Hour)
	for i, score := range scores {
		entry := models.MoodEntry{
			ID:         fmt.Sprintf("%s-mood-%d", userID, i+1),
			UserID:     userID,
			Score:      score,
			Prediction: mood.Predict(score),
			RecordedAt: base.Add(time.Duration(i+1) * time.Hour),
		}
		if err := st.SaveMoodEntry(entry); err != nil {
			t.Fatalf("failed to seed mood entry %d: %v", i+1, err)
		}
	}
}
