package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func chatReply(t *testing.T, w http.ResponseWriter, report Report) {
	t.Helper()
	content, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	fmt.Fprintf(w, `{"choices":[{"message":{"content":%s}}]}`, mustQuote(t, content))
}

func mustQuote(t *testing.T, b []byte) string {
	t.Helper()
	quoted, err := json.Marshal(string(b))
	if err != nil {
		t.Fatalf("quote content: %v", err)
	}
	return string(quoted)
}

func TestClassifierParsesReport(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-5-nano" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.JSONSchema.Name != "VoiceModerationReport" {
			t.Error("structured output schema missing")
		}

		chatReply(t, w, Report{Violations: []ViolationEvent{{
			UserID:  "10",
			Rule:    "No slurs.",
			Reason:  "used a slur",
			Actions: []string{"timeout:1h"},
		}}})
	}))
	defer srv.Close()

	c := NewClassifier(srv.URL, "test-key", 5000)
	report, err := c.Classify(context.Background(), "gpt-5-nano", "system", "user")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
	if len(report.Violations) != 1 || report.Violations[0].UserID != "10" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestClassifierStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusInternalServerError, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
		{http.StatusTooManyRequests, ErrTransient},
		{http.StatusBadRequest, ErrPermanent},
		{http.StatusUnauthorized, ErrPermanent},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewClassifier(srv.URL, "", 5000)
		_, err := c.Classify(context.Background(), "gpt-5-nano", "s", "u")
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestClassifierMalformedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"this is not json"}}]}`)
	}))
	defer srv.Close()

	c := NewClassifier(srv.URL, "", 5000)
	if _, err := c.Classify(context.Background(), "gpt-5-nano", "s", "u"); !errors.Is(err, ErrPermanent) {
		t.Fatalf("err = %v, want ErrPermanent", err)
	}
}

func TestClassifierUnconfigured(t *testing.T) {
	c := &Classifier{HTTP: http.DefaultClient}
	if _, err := c.Classify(context.Background(), "gpt-5-nano", "s", "u"); !errors.Is(err, ErrPermanent) {
		t.Fatalf("err = %v, want ErrPermanent", err)
	}
}
