package providers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/BTreeMap/MoodPipe/internal/models"
)

func TestWithingsFetchMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/measure", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "getmeas" {
			t.Errorf("measure action = %q, want getmeas", q.Get("action"))
		}
		if q.Get("meastype") != "11" {
			t.Errorf("meastype = %q, want 11", q.Get("meastype"))
		}
		// value 720 at unit -1 scales to a pulse of 72.
		io.WriteString(w, `{"status":0,"body":{"measuregrps":[{"date":1756000000,"measures":[{"value":720,"type":11,"unit":-1}]}]}}`)
	})
	mux.HandleFunc("/v2/sleep", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "getsummary" {
			t.Errorf("sleep action = %q, want getsummary", q.Get("action"))
		}
		if q.Get("startdateymd") == "" || q.Get("enddateymd") == "" {
			t.Errorf("sleep query missing date range: %v", q)
		}
		io.WriteString(w, `{"status":0,"body":{"series":[
			{"data":{"total_sleep_time":21600,"deepsleepduration":5400,"lightsleepduration":12600,"remsleepduration":3600,"sleep_score":70,"hr_average":60}},
			{"data":{"total_sleep_time":25200,"deepsleepduration":7200,"lightsleepduration":14400,"remsleepduration":3600,"sleep_score":78,"hr_average":58}}
		]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wi := NewWithings(WithAPIBase(srv.URL))
	rec, err := wi.FetchMetrics(context.Background(), &oauth2.Token{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("FetchMetrics: %v", err)
	}
	if rec.HeartRate.Current != 72 {
		t.Errorf("pulse = %d, want 72", rec.HeartRate.Current)
	}
	if rec.HeartRate.Resting != 58 {
		t.Errorf("resting heart rate = %d, want 58 from the latest night", rec.HeartRate.Resting)
	}
	if rec.Sleep.Duration != 420 {
		t.Errorf("sleep duration = %d, want 420", rec.Sleep.Duration)
	}
	if rec.Sleep.Quality != 78 {
		t.Errorf("sleep quality = %d, want 78", rec.Sleep.Quality)
	}
	want := models.SleepStages{Deep: 120, Light: 240, REM: 60}
	if rec.Sleep.Stages != want {
		t.Errorf("stages = %+v, want %+v", rec.Sleep.Stages, want)
	}
	if rec.Source != ProviderWithings || rec.Confidence != providerConfidence {
		t.Errorf("source/confidence = %s/%v", rec.Source, rec.Confidence)
	}
}

func TestWithingsAPIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Withings reports auth failures with HTTP 200 and a non-zero status.
		io.WriteString(w, `{"status":401,"body":{}}`)
	}))
	defer srv.Close()

	wi := NewWithings(WithAPIBase(srv.URL))
	_, err := wi.FetchMetrics(context.Background(), &oauth2.Token{AccessToken: "tok"})
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("error = %v, want embedded API status", err)
	}
}

func TestWithingsEmptyAccount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/measure", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":0,"body":{"measuregrps":[]}}`)
	})
	mux.HandleFunc("/v2/sleep", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":0,"body":{"series":[]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wi := NewWithings(WithAPIBase(srv.URL))
	rec, err := wi.FetchMetrics(context.Background(), &oauth2.Token{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("FetchMetrics: %v", err)
	}
	if rec.HeartRate.Current != 0 || rec.Sleep.Duration != 0 {
		t.Errorf("empty account produced data: %+v", rec)
	}
	if rec.Source != ProviderWithings {
		t.Errorf("source = %s, want %s", rec.Source, ProviderWithings)
	}
}
