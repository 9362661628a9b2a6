// internal/api/server_test.go
package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ugorji/go/codec"

	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
	"github.com/tamzrod/hp3478a-bridge/internal/poller"
	"github.com/tamzrod/hp3478a-bridge/internal/status"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := codec.NewDecoderBytes(rec.Body.Bytes(), jsonHandle).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func populated() *Store {
	s := NewStore()
	s.Register("b", "gpib0")
	s.Observe(poller.PollResult{
		MeterID: "a",
		LinkID:  "gpib0",
		CycleID: "c-1",
		At:      time.Unix(1700000000, 0).UTC(),
		Value:   1.25,
		Status: hp3478a.Status{
			Function:        hp3478a.DCVolts,
			Range:           3,
			Digits:          1,
			AutoZero:        true,
			TriggerInternal: true,
			Errors:          hp3478a.ErrorFlags{ROM: true},
		},
	})
	s.SetHealth("a", "gpib0", status.Snapshot{Health: status.HealthOK})
	return s
}

func TestPing(t *testing.T) {
	rec := get(t, Routes(NewStore(), nil), "/api/v1/ping")
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("code=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestMeters_List(t *testing.T) {
	rec := get(t, Routes(populated(), nil), "/api/v1/meters")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	if ct := rec.Header().Get(ContentType); ct != ContentJSON {
		t.Fatalf("content type=%q", ct)
	}

	var views []MeterView
	decode(t, rec, &views)
	if len(views) != 2 || views[0].ID != "a" || views[1].ID != "b" {
		t.Fatalf("views=%+v", views)
	}
	if views[1].Health != "unknown" || views[1].Value != nil {
		t.Fatalf("unpolled meter=%+v", views[1])
	}
}

func TestMeter_Detail(t *testing.T) {
	rec := get(t, Routes(populated(), nil), "/api/v1/meters/a")
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}

	var v MeterView
	decode(t, rec, &v)
	if v.Value == nil || *v.Value != 1.25 {
		t.Fatalf("value=%v", v.Value)
	}
	if v.Function != "VDC" || v.Range != "3V" || v.Digits != 5.5 {
		t.Fatalf("view=%+v", v)
	}
	if v.Health != "ok" || v.Trigger != "internal" || !v.AutoZero {
		t.Fatalf("view=%+v", v)
	}
	if len(v.SelfTest) != 1 || v.SelfTest[0] != "rom" {
		t.Fatalf("self test=%v", v.SelfTest)
	}
}

func TestMeter_NotFound(t *testing.T) {
	rec := get(t, Routes(populated(), nil), "/api/v1/meters/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestStore_FailedPollKeepsReading(t *testing.T) {
	s := populated()
	s.Observe(poller.PollResult{MeterID: "a", LinkID: "gpib0", Err: errors.New("no response")})

	v, ok := s.Get("a")
	if !ok {
		t.Fatalf("meter missing")
	}
	if v.Error != "no response" || v.Value == nil || *v.Value != 1.25 {
		t.Fatalf("view=%+v", v)
	}

	s.Observe(poller.PollResult{MeterID: "a", LinkID: "gpib0", Value: 2})
	v, _ = s.Get("a")
	if v.Error != "" || *v.Value != 2 {
		t.Fatalf("view after recovery=%+v", v)
	}
}

func TestHealthName(t *testing.T) {
	cases := map[uint16]string{
		status.HealthUnknown:  "unknown",
		status.HealthOK:       "ok",
		status.HealthError:    "error",
		status.HealthStale:    "stale",
		status.HealthDisabled: "disabled",
		99:                    "unknown",
	}
	for h, want := range cases {
		if got := HealthName(h); got != want {
			t.Fatalf("HealthName(%d)=%q want %q", h, got, want)
		}
	}
}
