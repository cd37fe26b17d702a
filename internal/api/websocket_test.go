package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"namlong/internal/ws"
)

func TestOriginMatchesAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed string
		want    bool
	}{
		{name: "exact_match", origin: "https://namlong.edu.vn", allowed: "https://namlong.edu.vn", want: true},
		{name: "case_insensitive", origin: "https://NAMLONG.edu.vn", allowed: "https://namlong.edu.vn", want: true},
		{name: "wildcard_prefix_match", origin: "https://preview-12.namlong.dev", allowed: "https://preview-*", want: true},
		{name: "wildcard_prefix_miss", origin: "https://namlong.edu.vn", allowed: "https://preview-*", want: false},
		{name: "exact_miss", origin: "https://evil.com", allowed: "https://namlong.edu.vn", want: false},
		{name: "empty_allowed", origin: "https://namlong.edu.vn", allowed: " ", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := originMatchesAllowed(tt.origin, tt.allowed); got != tt.want {
				t.Fatalf("originMatchesAllowed(%q, %q) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestCheckOriginAllowsLoopbackAndConfiguredOrigins(t *testing.T) {
	handler := NewWebSocketHandler(nil, nil, nil, []string{"https://namlong.edu.vn"})

	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "", want: true},
		{origin: "http://127.0.0.1:5173", want: true},
		{origin: "http://localhost:3000", want: true},
		{origin: "https://namlong.edu.vn", want: true},
		{origin: "https://evil.com", want: false},
		{origin: "not a url", want: false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://localhost/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := handler.checkOrigin(req); got != tt.want {
			t.Fatalf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) ws.WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg struct {
		Op   ws.OpCode       `json:"op"`
		Type string          `json:"t"`
		Data json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return ws.WSMessage{Op: msg.Op, Type: msg.Type, Data: msg.Data}
}

func TestServeWSRejectsMissingAndInvalidTokens(t *testing.T) {
	env := newTestEnv(t)
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"

	for _, query := range []string{"", "?token=garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+query, nil)
		if err == nil {
			t.Fatalf("Dial(%q) succeeded, want error", query)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("Dial(%q) response = %v, want 401", query, resp)
		}
	}
}

func TestServeWSHandshakeAndSend(t *testing.T) {
	env := newTestEnv(t)
	out := env.createSession(t, "/")
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=" + out.Token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if hello := readFrame(t, conn); hello.Op != ws.OpHello {
		t.Fatalf("first op = %d, want HELLO", hello.Op)
	}

	ready := readFrame(t, conn)
	if ready.Op != ws.OpReady {
		t.Fatalf("second op = %d, want READY", ready.Op)
	}
	var payload ws.ReadyPayload
	if err := json.Unmarshal(ready.Data.(json.RawMessage), &payload); err != nil {
		t.Fatalf("Unmarshal(ready) error = %v", err)
	}
	if payload.SessionID != out.SessionID || payload.PageTitle != "Trang chủ" {
		t.Fatalf("ready payload = %+v", payload)
	}

	send := func(cmd string, data any) {
		t.Helper()
		if err := conn.WriteJSON(map[string]any{"op": ws.OpDispatch, "t": cmd, "d": data}); err != nil {
			t.Fatalf("WriteJSON(%s) error = %v", cmd, err)
		}
	}
	send(ws.CmdDraftSet, map[string]any{"text": "số điện thoại liên hệ?"})
	send(ws.CmdDraftSubmit, map[string]any{})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if frame.Type == ws.EventNavigate {
			var nav ws.NavigatePayload
			if err := json.Unmarshal(frame.Data.(json.RawMessage), &nav); err != nil {
				t.Fatalf("Unmarshal(navigate) error = %v", err)
			}
			if nav.Path != "/lien-he" {
				t.Fatalf("navigate path = %q, want /lien-he", nav.Path)
			}
			return
		}
	}
	t.Fatal("did not receive NAVIGATE")
}
