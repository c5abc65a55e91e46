package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/inneros/inneros/internal/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 0, testLogger())
	if !c.Available(context.Background()) {
		t.Error("running endpoint should be available")
	}

	srv.Close()
	if c.Available(context.Background()) {
		t.Error("closed endpoint should be unavailable")
	}
}

func TestEnrich_ParsesAssessment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Model != "llama3" || req.Stream {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(generateResponse{
			Response: `{"quality_score": 0.82, "tags": ["go", "testing"], "summary": "A note."}`,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 0, testLogger())
	res, err := c.Enrich(context.Background(), "# Note\nBody")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.QualityScore != 0.82 {
		t.Errorf("quality = %v", res.QualityScore)
	}
	if len(res.Tags) != 2 || res.Summary == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestEnrich_ClampsScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: `{"quality_score": 1.7}`})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 0, testLogger())
	res, err := c.Enrich(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if res.QualityScore != 1.0 {
		t.Errorf("score = %v, want clamped to 1.0", res.QualityScore)
	}
}

func TestEnrich_EndpointDownIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, "llama3", 0, testLogger())
	_, err := c.Enrich(context.Background(), "x")
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestEnrich_NonJSONAssessment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "I think this note is fine."})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "llama3", 0, testLogger())
	if _, err := c.Enrich(context.Background(), "x"); err == nil {
		t.Error("prose assessment should be rejected")
	}
}
