package telephony_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parlance-ai/parlance/pkg/rest"
	"github.com/parlance-ai/parlance/pkg/telephony"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *telephony.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := telephony.New(srv.URL, "test-key",
		rest.WithBackoff(time.Millisecond, 10*time.Millisecond))
	return srv, client
}

func TestAnswer(t *testing.T) {
	var gotPath atomic.Value
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.Answer(context.Background(), "cc-123"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got := gotPath.Load(); got != "/calls/cc-123/actions/answer" {
		t.Errorf("path = %v", got)
	}
}

func TestSendDTMF_DurationClamped(t *testing.T) {
	var gotDuration atomic.Int64
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Digits         string `json:"digits"`
			DurationMillis int    `json:"duration_millis"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotDuration.Store(int64(body.DurationMillis))
		w.WriteHeader(http.StatusOK)
	})

	if err := client.SendDTMF(context.Background(), "cc-1", "1w2", 50); err != nil {
		t.Fatalf("SendDTMF: %v", err)
	}
	if gotDuration.Load() != telephony.MinDTMFDurationMs {
		t.Errorf("duration = %d, want clamped to %d", gotDuration.Load(), telephony.MinDTMFDurationMs)
	}

	if err := client.SendDTMF(context.Background(), "cc-1", "1", 9000); err != nil {
		t.Fatalf("SendDTMF: %v", err)
	}
	if gotDuration.Load() != telephony.MaxDTMFDurationMs {
		t.Errorf("duration = %d, want clamped to %d", gotDuration.Load(), telephony.MaxDTMFDurationMs)
	}
}

func TestDial_DiscoversApplicationOnce(t *testing.T) {
	var listCalls atomic.Int64
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/call_control_applications" && r.Method == http.MethodGet:
			listCalls.Add(1)
			_, _ = w.Write([]byte(`{"data":[{"id":"app-7","application_name":"parlance-voice-bridge"}]}`))
		case r.URL.Path == "/calls" && r.Method == http.MethodPost:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["connection_id"] != "app-7" {
				t.Errorf("connection_id = %v, want app-7", body["connection_id"])
			}
			if body["audio_codec"] != "ulaw" {
				t.Errorf("audio_codec = %v, want ulaw", body["audio_codec"])
			}
			_, _ = w.Write([]byte(`{"data":{"call_control_id":"cc-42"}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	for range 3 {
		id, err := client.Dial(ctx, telephony.DialRequest{To: "+15550100", From: "+15550199"})
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		if id != "cc-42" {
			t.Errorf("call id = %q, want cc-42", id)
		}
	}
	if listCalls.Load() != 1 {
		t.Errorf("application listed %d times, want 1 (cached)", listCalls.Load())
	}
}

func TestRetryOn500(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := client.Hangup(context.Background(), "cc-1"); err != nil {
		t.Fatalf("Hangup after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("got %d attempts, want 3", calls.Load())
	}
}

func TestNoRetryOn401(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.Answer(context.Background(), "cc-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !rest.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("got %d attempts, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestMediaFrameRoundTrip(t *testing.T) {
	mulaw := []byte{0xFF, 0x7F, 0x00, 0x80}
	wire, err := telephony.EncodeMediaFrame(mulaw)
	if err != nil {
		t.Fatalf("EncodeMediaFrame: %v", err)
	}
	frame, err := telephony.ParseMediaFrame(wire)
	if err != nil {
		t.Fatalf("ParseMediaFrame: %v", err)
	}
	if frame.Event != telephony.EventMedia {
		t.Errorf("event = %q", frame.Event)
	}
	payload, err := frame.AudioPayload()
	if err != nil {
		t.Fatalf("AudioPayload: %v", err)
	}
	if string(payload) != string(mulaw) {
		t.Errorf("payload mismatch: %v", payload)
	}
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{"data":{"event_type":"call.hangup","payload":{
		"call_control_id":"cc-9","direction":"incoming","hangup_cause":"normal_clearing"}}}`)
	evt, err := telephony.ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if evt.EventType != telephony.WebhookCallHangup {
		t.Errorf("event type = %q", evt.EventType)
	}
	if evt.CallControlID != "cc-9" || evt.HangupCause != "normal_clearing" {
		t.Errorf("payload fields not decoded: %+v", evt)
	}
}
