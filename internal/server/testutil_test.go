package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"scramble/internal/session"
	"scramble/internal/storage"
)

// testBoardText is the 3x3 board used by the server tests:
//
//	🦄 🦄 🌈
//	🌈 ⭐ ⭐
//	☀ ☀ 🌙
const testBoardText = "3x3\n🦄\n🦄\n🌈\n🌈\n⭐\n⭐\n☀\n☀\n🌙"

// --- Test environment ---

type testEnv struct {
	ts  *httptest.Server
	mgr *session.Manager
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mgr := session.NewManager(store, zap.NewNop())
	srv := New(mgr, zap.NewNop())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, mgr: mgr}
}

// --- Context helpers ---

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// --- REST API helpers ---

func createGameViaAPI(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	body, err := json.Marshal(createGameRequest{Board: testBoardText})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(ts.URL+"/api/games", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var result createGameResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result.Code
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server, code string) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/api/games/" + code + "/ws"
}

// wsConnect dials a WebSocket, sends a join message, and returns the
// connection plus the player ID the server settled on. The caller is
// responsible for closing the connection.
func wsConnect(t *testing.T, ts *httptest.Server, code, playerID string) (*websocket.Conn, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts, code), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	if err := sendWS(ctx, conn, "join", joinPayload{PlayerID: playerID}); err != nil {
		t.Fatalf("send join: %v", err)
	}
	msg, err := readWS(ctx, conn)
	if err != nil {
		t.Fatalf("read joined: %v", err)
	}
	if msg.Type != "joined" {
		t.Fatalf("expected joined message, got %q: %s", msg.Type, string(msg.Payload))
	}
	var jp joinedPayload
	if err := json.Unmarshal(msg.Payload, &jp); err != nil {
		t.Fatalf("unmarshal joined payload: %v", err)
	}
	return conn, jp.PlayerID
}

// sendWS marshals and sends a typed WebSocket message.
func sendWS(ctx context.Context, conn *websocket.Conn, msgType string, payload any) error {
	p, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(WSMessage{Type: msgType, Payload: p})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// readWS reads and unmarshals a single WebSocket message.
func readWS(ctx context.Context, conn *websocket.Conn) (WSMessage, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return WSMessage{}, err
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return WSMessage{}, err
	}
	return msg, nil
}

// readBoard reads a WebSocket message and expects it to be a board push.
func readBoard(t *testing.T, ctx context.Context, conn *websocket.Conn) boardPayload {
	t.Helper()
	msg, err := readWS(ctx, conn)
	if err != nil {
		t.Fatalf("read board: %v", err)
	}
	if msg.Type != "board" {
		t.Fatalf("expected board message, got %q: %s", msg.Type, string(msg.Payload))
	}
	var bp boardPayload
	if err := json.Unmarshal(msg.Payload, &bp); err != nil {
		t.Fatalf("unmarshal board payload: %v", err)
	}
	return bp
}

// readBoardContaining reads board pushes until one contains substr.
func readBoardContaining(t *testing.T, ctx context.Context, conn *websocket.Conn, substr string) boardPayload {
	t.Helper()
	for {
		bp := readBoard(t, ctx, conn)
		if strings.Contains(bp.View, substr) {
			return bp
		}
	}
}

// readError reads a WebSocket message and expects it to be an "error" message.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	msg, err := readWS(ctx, conn)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if msg.Type != "error" {
		t.Fatalf("expected error message, got %q: %s", msg.Type, string(msg.Payload))
	}
	var ep errorPayload
	if err := json.Unmarshal(msg.Payload, &ep); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	return ep.Message
}

// cellLine extracts one cell's line from a 3-column board view.
func cellLine(t *testing.T, view string, row, col int) string {
	t.Helper()
	lines := strings.Split(view, "\n")
	idx := 1 + row*3 + col
	if idx >= len(lines) {
		t.Fatalf("view has %d lines, wanted cell (%d,%d):\n%s", len(lines), row, col, view)
	}
	return lines[idx]
}
