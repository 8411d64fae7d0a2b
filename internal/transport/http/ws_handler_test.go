package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/simsync-server/internal/auth"
	"github.com/vovakirdan/simsync-server/internal/config"
	"github.com/vovakirdan/simsync-server/internal/core"
	"github.com/vovakirdan/simsync-server/internal/proto"
	"github.com/vovakirdan/simsync-server/internal/store/sqlite"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	cfg := config.Default()
	cfg.SyncTimeout = 5 * time.Second

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	server := NewServer(Deps{
		Registry: core.NewRegistry(&logger),
		Rules:    core.DefaultRules(),
		Auth:     authService,
		Journal:  st,
		Config:   cfg,
		Log:      &logger,
	})

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func stdRequest(url, token string) (*stdhttp.Request, error) {
	req, err := stdhttp.NewRequest(stdhttp.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

func sendHello(ctx context.Context, t *testing.T, conn *websocket.Conn, session, version, token string) {
	t.Helper()

	payload, err := json.Marshal(proto.HelloData{Session: session, Protocol: version, Token: token})
	if err != nil {
		t.Fatalf("marshal hello: %v", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Frame{Type: proto.FrameHello, Data: payload}); err != nil {
		t.Fatalf("send hello: %v", err)
	}
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.Frame {
	t.Helper()

	var frame proto.Frame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// joinSession dials, handshakes and consumes the welcome and sync frames.
func joinSession(ctx context.Context, t *testing.T, ts *httptest.Server, session string) (*websocket.Conn, proto.WelcomeData) {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	sendHello(ctx, t, conn, session, proto.Version, "")

	frame := readFrame(ctx, t, conn)
	if frame.Type != proto.FrameWelcome {
		t.Fatalf("expected welcome, got %s", frame.Type)
	}
	var welcome proto.WelcomeData
	if err := json.Unmarshal(frame.Data, &welcome); err != nil {
		t.Fatalf("unmarshal welcome: %v", err)
	}

	if f := readFrame(ctx, t, conn); f.Type != proto.FrameSyncBegin {
		t.Fatalf("expected sync-begin, got %s", f.Type)
	}
	for {
		f := readFrame(ctx, t, conn)
		if f.Type == proto.FrameSyncEnd {
			break
		}
		if f.Type != proto.FrameSyncState {
			t.Fatalf("expected sync-state, got %s", f.Type)
		}
	}

	return conn, welcome
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestProtocolVersionMismatch(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	sendHello(ctx, t, conn, "arena", "2.0.0", "")

	frame := readFrame(ctx, t, conn)
	if frame.Type != proto.FrameError {
		t.Fatalf("expected error frame, got %s", frame.Type)
	}
	var errData proto.ErrorData
	if err := json.Unmarshal(frame.Data, &errData); err != nil {
		t.Fatalf("unmarshal error data: %v", err)
	}
	if errData.Code != proto.ErrCodeIncompatibleProtocol {
		t.Fatalf("expected incompatible_protocol, got %s", errData.Code)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	sendHello(ctx, t, conn, "arena", proto.Version, "garbage-token")

	frame := readFrame(ctx, t, conn)
	if frame.Type != proto.FrameError {
		t.Fatalf("expected error frame, got %s", frame.Type)
	}
	var errData proto.ErrorData
	if err := json.Unmarshal(frame.Data, &errData); err != nil {
		t.Fatalf("unmarshal error data: %v", err)
	}
	if errData.Code != proto.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %s", errData.Code)
	}
}

func TestJoinSyncAndRelay(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA, welcomeA := joinSession(ctx, t, ts, "arena")
	defer connA.Close(websocket.StatusNormalClosure, "done")

	// First joiner is promoted to authority.
	authority := readFrame(ctx, t, connA)
	if authority.Type != proto.FrameAuthority {
		t.Fatalf("expected authority frame, got %s", authority.Type)
	}
	var authData proto.AuthorityData
	if err := json.Unmarshal(authority.Data, &authData); err != nil {
		t.Fatalf("unmarshal authority data: %v", err)
	}
	if !authData.Authoritative {
		t.Fatalf("expected first joiner to be authoritative")
	}

	connB, welcomeB := joinSession(ctx, t, ts, "arena")
	defer connB.Close(websocket.StatusNormalClosure, "done")

	if welcomeA.JoinOrder >= welcomeB.JoinOrder {
		t.Fatalf("expected increasing join orders, got %d then %d", welcomeA.JoinOrder, welcomeB.JoinOrder)
	}

	// Authoritative A moves an object; B must see it.
	update := proto.Frame{
		Type: core.MsgTypePositionUpdate,
		ID:   "u1",
		Data: json.RawMessage(`{"object":"o1","x":4}`),
	}
	if err := wsjson.Write(ctx, connA, update); err != nil {
		t.Fatalf("send update: %v", err)
	}

	relayed := readFrame(ctx, t, connB)
	if relayed.Type != core.MsgTypePositionUpdate {
		t.Fatalf("expected relayed position update, got %s", relayed.Type)
	}
	if string(relayed.Data) != `{"object":"o1","x":4}` {
		t.Fatalf("unexpected relayed payload: %s", relayed.Data)
	}
}

func TestSessionsEndpointRequiresAuth(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("sessions request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	body := bytes.NewBufferString(`{"username":"alice","password":"password123"}`)
	regResp, err := ts.Client().Post(ts.URL+"/api/register", "application/json", body)
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	defer regResp.Body.Close()
	if regResp.StatusCode != 201 {
		t.Fatalf("expected 201 from register, got %d", regResp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(regResp.Body).Decode(&authResp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	req, _ := stdRequest(ts.URL+"/api/sessions", authResp.Token)
	listResp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("authorized sessions request failed: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != 200 {
		t.Fatalf("expected 200 with token, got %d", listResp.StatusCode)
	}
}
