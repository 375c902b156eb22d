package session

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TienVM2004/mai-live/internal/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// captionServer is a scripted transcription server endpoint for one
// connection at a time.
type captionServer struct {
	t          *testing.T
	srv        *httptest.Server
	handshakes chan handshake
	conns      chan *websocket.Conn
}

func newCaptionServer(t *testing.T) *captionServer {
	cs := &captionServer{
		t:          t,
		handshakes: make(chan handshake, 4),
		conns:      make(chan *websocket.Conn, 4),
	}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var hs handshake
		if err := conn.ReadJSON(&hs); err != nil {
			conn.Close()
			return
		}
		cs.handshakes <- hs
		cs.conns <- conn
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *captionServer) hostPort() (string, int) {
	hostPort := strings.TrimPrefix(cs.srv.URL, "http://")
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		cs.t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// accept waits for a client to finish its handshake and returns the server
// side of the connection plus the handshake it sent.
func (cs *captionServer) accept() (*websocket.Conn, handshake) {
	select {
	case hs := <-cs.handshakes:
		return <-cs.conns, hs
	case <-time.After(2 * time.Second):
		cs.t.Fatal("timed out waiting for client connection")
		return nil, handshake{}
	}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func newTestClient(host string, port int) (*Client, chan types.StatusUpdate, chan ServerEvent) {
	client := NewClient(ClientConfig{
		Host:       host,
		Port:       port,
		Name:       "tester",
		Model:      "large-v3",
		UseVAD:     true,
		RetryDelay: 20 * time.Millisecond,
	})
	statusCh := make(chan types.StatusUpdate, 32)
	eventCh := make(chan ServerEvent, 32)
	client.OnStatus(func(u types.StatusUpdate) { statusCh <- u })
	client.OnEvent(func(ev ServerEvent) { eventCh <- ev })
	return client, statusCh, eventCh
}

func waitStatus(t *testing.T, ch chan types.StatusUpdate, want types.ConnectionStatus) types.StatusUpdate {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-ch:
			if u.Status == want {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func TestClient_HandshakeAndReady(t *testing.T) {
	cs := newCaptionServer(t)
	host, port := cs.hostPort()
	client, statusCh, _ := newTestClient(host, port)
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitStatus(t, statusCh, types.StatusConnecting)

	conn, hs := cs.accept()
	defer conn.Close()

	if hs.UID == "" {
		t.Error("handshake uid empty")
	}
	if hs.Language != "en" || hs.Task != "transcribe" {
		t.Errorf("handshake = %+v", hs)
	}
	if hs.MaxClients != 4 || hs.MaxConnectionTime != 6000 {
		t.Errorf("handshake limits = %d/%d", hs.MaxClients, hs.MaxConnectionTime)
	}
	if hs.Name != "tester" || hs.Model != "large-v3" || !hs.UseVAD {
		t.Errorf("handshake identity = %+v", hs)
	}

	send(t, conn, map[string]any{"uid": hs.UID, "message": "SERVER_READY", "backend": "faster_whisper"})
	waitStatus(t, statusCh, types.StatusConnected)

	if client.Status() != types.StatusConnected {
		t.Errorf("Status() = %q", client.Status())
	}
}

func TestClient_IgnoresForeignSessionMessages(t *testing.T) {
	cs := newCaptionServer(t)
	host, port := cs.hostPort()
	client, statusCh, eventCh := newTestClient(host, port)
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn, hs := cs.accept()
	defer conn.Close()
	send(t, conn, map[string]any{"uid": hs.UID, "message": "SERVER_READY"})
	waitStatus(t, statusCh, types.StatusConnected)

	// Stale message addressed to a previous session identity.
	send(t, conn, map[string]any{
		"uid":        "someone-else",
		"transcript": map[string]any{"recent_segments": []any{}},
	})
	// A message for this session proves ordering: if the foreign one were
	// delivered it would arrive first.
	send(t, conn, map[string]any{
		"uid":     hs.UID,
		"summary": "ours",
	})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-eventCh:
			switch ev := ev.(type) {
			case ReadyEvent:
				continue
			case SummaryEvent:
				if ev.Summary != "ours" {
					t.Errorf("summary = %q", ev.Summary)
				}
				return
			default:
				t.Fatalf("foreign message delivered: %+v", ev)
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestClient_WaitStatus(t *testing.T) {
	cs := newCaptionServer(t)
	host, port := cs.hostPort()
	client, statusCh, _ := newTestClient(host, port)
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn, hs := cs.accept()
	defer conn.Close()

	send(t, conn, map[string]any{"uid": hs.UID, "status": "WAIT", "message": 1.5})

	u := waitStatus(t, statusCh, types.StatusWaiting)
	if u.WaitMinutes != 1.5 {
		t.Errorf("WaitMinutes = %v", u.WaitMinutes)
	}
}

func TestClient_ServerDisconnect(t *testing.T) {
	cs := newCaptionServer(t)
	host, port := cs.hostPort()
	client, statusCh, _ := newTestClient(host, port)
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn, hs := cs.accept()
	defer conn.Close()
	send(t, conn, map[string]any{"uid": hs.UID, "message": "SERVER_READY"})
	waitStatus(t, statusCh, types.StatusConnected)

	send(t, conn, map[string]any{"uid": hs.UID, "message": "DISCONNECT"})
	waitStatus(t, statusCh, types.StatusDisconnected)
}

func TestClient_RetryBudget(t *testing.T) {
	// Reserve a port with nothing listening on it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	client, statusCh, _ := newTestClient("127.0.0.1", port)
	defer client.Disconnect()

	_ = client.Connect(context.Background())

	// Initial attempt plus two silent retries, then terminal.
	var errored int
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-statusCh:
			if u.Status != types.StatusError {
				continue
			}
			errored++
			if u.Terminal {
				if errored != 3 {
					t.Errorf("terminal after %d failures, want 3", errored)
				}
				// Manual reconnect resets the budget: the next failure is
				// attempt 1 again, not terminal.
				_ = client.Connect(context.Background())
				u2 := waitStatus(t, statusCh, types.StatusError)
				if u2.Terminal {
					t.Error("first failure after manual reconnect marked terminal")
				}
				return
			}
			if errored >= 3 {
				t.Fatal("third consecutive failure was not terminal")
			}
		case <-deadline:
			t.Fatalf("timed out, saw %d failures", errored)
		}
	}
}

func TestClient_SendAudioRequiresConnection(t *testing.T) {
	client, _, _ := newTestClient("127.0.0.1", 1)
	if client.SendAudio([]float32{0.1, 0.2}) {
		t.Error("SendAudio succeeded without a connection")
	}
}

func TestClient_SendAudioFrames(t *testing.T) {
	cs := newCaptionServer(t)
	host, port := cs.hostPort()
	client, statusCh, _ := newTestClient(host, port)
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn, hs := cs.accept()
	defer conn.Close()
	send(t, conn, map[string]any{"uid": hs.UID, "message": "SERVER_READY"})
	waitStatus(t, statusCh, types.StatusConnected)

	if !client.SendAudio([]float32{0, 0.5, -1}) {
		t.Fatal("SendAudio failed while connected")
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", msgType)
	}
	if len(data) != 12 {
		t.Errorf("frame length = %d, want 12 bytes for 3 samples", len(data))
	}
	// 0.5 little-endian float32
	if data[4] != 0x00 || data[5] != 0x00 || data[6] != 0x00 || data[7] != 0x3F {
		t.Errorf("second sample bytes = % x", data[4:8])
	}
}

func TestClient_ServerURLScheme(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"localhost", "ws://localhost:9090"},
		{"127.0.0.1", "ws://127.0.0.1:9090"},
		{"::1", "ws://[::1]:9090"},
		{"captions.example.com", "wss://captions.example.com:9090"},
		{"10.0.0.5", "wss://10.0.0.5:9090"},
	}
	for _, tt := range tests {
		c := NewClient(ClientConfig{Host: tt.host, Port: 9090})
		if got := c.serverURL(); got != tt.want {
			t.Errorf("serverURL(%s) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestClient_DisconnectSendsNotice(t *testing.T) {
	cs := newCaptionServer(t)
	host, port := cs.hostPort()
	client, statusCh, _ := newTestClient(host, port)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn, hs := cs.accept()
	defer conn.Close()
	send(t, conn, map[string]any{"uid": hs.UID, "message": "SERVER_READY"})
	waitStatus(t, statusCh, types.StatusConnected)

	client.Disconnect()

	var notice disconnectNotice
	if err := conn.ReadJSON(&notice); err != nil {
		t.Fatalf("read disconnect notice: %v", err)
	}
	if notice.Type != "disconnect" || notice.UID != hs.UID {
		t.Errorf("notice = %+v", notice)
	}
	if client.Status() != types.StatusDisconnected {
		t.Errorf("Status() = %q after Disconnect", client.Status())
	}
}
