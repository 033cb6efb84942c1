package serve

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samsaffron/llm-gateway/internal/frame"
	"github.com/samsaffron/llm-gateway/internal/llm"
	"github.com/samsaffron/llm-gateway/internal/session"
)

func newTestServer(t *testing.T, mock *llm.MockProvider, token string) (*httptest.Server, session.Store) {
	t.Helper()
	gw := llm.NewGateway(nil, zerolog.Nop()).WithFactory(llm.MockFactory(mock))
	store := session.NewMemoryStore()
	srv := New(Options{
		Gateway: gw,
		Store:   store,
		Logger:  zerolog.Nop(),
		Token:   token,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

const chatBody = `{"model":"gemini-2.5-flash","contents":[{"role":"user","parts":[{"text":"hi"}]}]}`

func decodeFrames(t *testing.T, body io.Reader) []frame.Frame {
	t.Helper()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	dec := frame.NewDecoder(zerolog.Nop())
	frames := dec.Feed(data)
	if dec.Buffered() != 0 {
		t.Fatalf("trailing bytes after last delimiter: %q", data)
	}
	return frames
}

func TestChatStreamsFrames(t *testing.T) {
	mock := llm.NewMockProvider("mock").AddTextResponse("Hel", "lo")
	ts, _ := newTestServer(t, mock, "")

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(chatBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	frames := decodeFrames(t, resp.Body)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3: %+v", len(frames), frames)
	}
	if frames[0].Text != "Hel" || frames[1].Text != "lo" {
		t.Errorf("unexpected texts: %+v", frames)
	}
	if frames[2].FinishReason != frame.FinishStop {
		t.Errorf("last frame finish = %q, want stop", frames[2].FinishReason)
	}
}

func TestChatUnprefixedRoute(t *testing.T) {
	mock := llm.NewMockProvider("mock").AddTextResponse("ok")
	ts, _ := newTestServer(t, mock, "")

	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(chatBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestChatUpstreamErrorBecomesErrorFrame(t *testing.T) {
	mock := llm.NewMockProvider("mock").AddTurn(llm.MockTurn{
		Frames: []frame.Frame{{Text: "partial"}},
		Error:  errors.New("upstream exploded"),
	})
	ts, _ := newTestServer(t, mock, "")

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(chatBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	frames := decodeFrames(t, resp.Body)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %+v", len(frames), frames)
	}
	if frames[0].Text != "partial" {
		t.Errorf("first frame = %+v", frames[0])
	}
	if !frames[1].IsError() || !strings.Contains(frames[1].Error, "upstream exploded") {
		t.Errorf("last frame = %+v, want error frame", frames[1])
	}
}

func TestChatUnknownModelYieldsErrorFrame(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockProvider("mock"), "")

	body := `{"model":"llama-3","contents":[{"role":"user","parts":[{"text":"hi"}]}]}`
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	frames := decodeFrames(t, resp.Body)
	if len(frames) != 1 || !frames[0].IsError() {
		t.Fatalf("frames = %+v, want one error frame", frames)
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockProvider("mock"), "")

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"put", http.MethodPut, chatBody, http.StatusMethodNotAllowed},
		{"malformed json", http.MethodPost, `{"model":`, http.StatusBadRequest},
		{"empty contents", http.MethodPost, `{"model":"gemini-2.5-flash","contents":[]}`, http.StatusBadRequest},
		{"missing model", http.MethodPost, `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+"/api/chat", strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status == http.StatusMethodNotAllowed && resp.Header.Get("Allow") != http.MethodPost {
				t.Errorf("Allow = %q, want POST", resp.Header.Get("Allow"))
			}
			var payload map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if payload["error"] == "" {
				t.Errorf("error body missing message: %v", payload)
			}
		})
	}
}

func TestConversationsRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockProvider("mock"), "")

	resp, err := http.Get(ts.URL + "/api/conversations?userId=u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("initial load = %d %q, want 200 []", resp.StatusCode, data)
	}

	body := `{"userId":"u1","conversations":[{"id":"c1","title":"Hello"}]}`
	resp, err = http.Post(ts.URL+"/api/conversations", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var saved map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&saved)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || saved["message"] != "saved" {
		t.Fatalf("save = %d %v", resp.StatusCode, saved)
	}

	resp, err = http.Get(ts.URL + "/api/conversations?userId=u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var convs []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&convs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(convs) != 1 || convs[0]["id"] != "c1" {
		t.Errorf("loaded = %v", convs)
	}
}

func TestConversationsValidation(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockProvider("mock"), "")

	tests := []struct {
		name   string
		method string
		query  string
		body   string
		status int
	}{
		{"get without user", http.MethodGet, "", "", http.StatusBadRequest},
		{"post without user", http.MethodPost, "", `{"conversations":[]}`, http.StatusBadRequest},
		{"post without conversations", http.MethodPost, "", `{"userId":"u1"}`, http.StatusBadRequest},
		{"post object instead of array", http.MethodPost, "", `{"userId":"u1","conversations":{"id":"x"}}`, http.StatusBadRequest},
		{"post malformed", http.MethodPost, "", `{`, http.StatusBadRequest},
		{"delete", http.MethodDelete, "?userId=u1", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+"/api/conversations"+tt.query, bytes.NewBufferString(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status == http.StatusMethodNotAllowed && resp.Header.Get("Allow") != "GET, POST" {
				t.Errorf("Allow = %q", resp.Header.Get("Allow"))
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	mock := llm.NewMockProvider("mock").AddTextResponse("ok")
	ts, _ := newTestServer(t, mock, "secret")

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/conversations?userId=u1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockProvider("mock"), "secret")

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "healthy" || health.Checks["store"].Status != "pass" {
		t.Errorf("health = %+v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := llm.NewMockProvider("mock").AddTextResponse("ok")
	ts, _ := newTestServer(t, mock, "")

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(chatBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "llm_gateway_http_requests_total") {
		t.Error("metrics output missing request counter")
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/chat":    "/api/chat",
		"/health":      "/health",
		"/favicon.ico": "other",
		"/api/chat/x":  "other",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
