package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
	"github.com/unclebandit/mailqueue-backend/internal/handler"
	"github.com/unclebandit/mailqueue-backend/internal/service"
)

type fixedVerifier struct {
	accept map[string]bool
	err    error
}

func (f fixedVerifier) Verify(ctx context.Context, supplied string) (bool, error) {
	return f.accept[supplied], f.err
}

type fakeRunner struct {
	ticks   int
	pending bool
	err     error
	panics  bool
}

func (f *fakeRunner) Tick(ctx context.Context) (*service.TickResult, error) {
	f.ticks++
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &service.TickResult{JobID: 1, Sent: 3}, nil
}

func (f *fakeRunner) HasPendingWork(ctx context.Context) (bool, error) { return f.pending, nil }

var fixedNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func newTrigger(r *fakeRunner, v fixedVerifier) *handler.TriggerHandler {
	h := handler.NewTriggerHandler(v, r, zerolog.Nop())
	h.Now = func() time.Time { return fixedNow }
	return h
}

func TestTriggerRejectsBadRequests(t *testing.T) {
	cases := map[string]string{
		"missing secret":   "/cron?trigger=true",
		"empty secret":     "/cron?trigger=true&secret=",
		"repeated secret":  "/cron?trigger=true&secret=good&secret=good",
		"wrong secret":     "/cron?trigger=true&secret=nope",
		"missing trigger":  "/cron?secret=good",
		"trigger not true": "/cron?trigger=1&secret=good",
	}
	for name, url := range cases {
		t.Run(name, func(t *testing.T) {
			runner := &fakeRunner{}
			h := newTrigger(runner, fixedVerifier{accept: map[string]bool{"good": true}})

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))

			if w.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", w.Code)
			}
			if !strings.Contains(w.Body.String(), "Usage") {
				t.Errorf("body = %q, want usage hint", w.Body.String())
			}
			if runner.ticks != 0 {
				t.Error("dispatcher ran for rejected request")
			}
		})
	}
}

func TestTriggerRunsDispatcher(t *testing.T) {
	runner := &fakeRunner{pending: true}
	h := newTrigger(runner, fixedVerifier{accept: map[string]bool{"good": true}})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron?trigger=true&secret=good", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := "OK\nPENDING\n2026-10-17T09:30:00Z\n"
	if w.Body.String() != want {
		t.Errorf("body = %q, want %q", w.Body.String(), want)
	}
	if runner.ticks != 1 {
		t.Errorf("ticks = %d, want 1", runner.ticks)
	}
}

func TestTriggerReportsComplete(t *testing.T) {
	runner := &fakeRunner{}
	h := newTrigger(runner, fixedVerifier{accept: map[string]bool{"good": true}})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron?trigger=true&secret=good", nil))

	if !strings.HasPrefix(w.Body.String(), "OK\nCOMPLETE\n") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestTriggerInternalFailure(t *testing.T) {
	for name, runner := range map[string]*fakeRunner{
		"error": {err: errors.New("connection refused to db at 10.0.0.5")},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			h := newTrigger(runner, fixedVerifier{accept: map[string]bool{"good": true}})

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron?trigger=true&secret=good", nil))

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", w.Code)
			}
			if w.Body.String() != "ERROR\n2026-10-17T09:30:00Z\n" {
				t.Errorf("body leaks detail: %q", w.Body.String())
			}
		})
	}
}

type fakeUnsubscriber struct {
	tokens map[string]string
}

func (f fakeUnsubscriber) UnsubscribeByToken(ctx context.Context, token string) (string, error) {
	if e, ok := f.tokens[token]; ok {
		return e, nil
	}
	return "", appErrors.ErrTokenNotFound
}

func TestUnsubscribeHandler(t *testing.T) {
	h := &handler.UnsubscribeHandler{
		Subscribers: fakeUnsubscriber{tokens: map[string]string{"abc": "ann@example.com"}},
		Log:         zerolog.Nop(),
	}

	cases := []struct {
		url  string
		code int
	}{
		{"/unsubscribe?token=abc", http.StatusOK},
		{"/unsubscribe?token=zzz", http.StatusNotFound},
		{"/unsubscribe", http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.url, nil))
		if w.Code != tc.code {
			t.Errorf("%s: status = %d, want %d", tc.url, w.Code, tc.code)
		}
	}
}
