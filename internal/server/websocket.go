package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"scramble/internal/session"
)

// WSMessage is the JSON envelope for WebSocket messages.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	PlayerID string `json:"playerId"`
}

type joinedPayload struct {
	PlayerID string `json:"playerId"`
}

type flipPayload struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type boardPayload struct {
	View    string         `json:"view"`
	Version uint64         `json:"version"`
	Scores  map[string]int `json:"scores"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	sess, ok := s.manager.Get(code)
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		s.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()

	// First message must be a join
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "join" {
		sendWSError(ctx, conn, "first message must be a join")
		return
	}
	var join joinPayload
	if err := json.Unmarshal(msg.Payload, &join); err != nil {
		sendWSError(ctx, conn, "invalid join payload")
		return
	}
	playerID := join.PlayerID
	if playerID == "" {
		playerID = guestID()
	}
	// Reject bad IDs up front instead of on the first flip.
	if _, err := sess.Board.Look(playerID); err != nil {
		sendWSError(ctx, conn, err.Error())
		return
	}

	send := make(chan []byte, 64)

	// Writer goroutine: send messages from the channel to the websocket
	go func() {
		for msg := range send {
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}()

	sendWSMsg(send, "joined", joinedPayload{PlayerID: playerID})

	// Watch pump: push the current view, then a fresh view each time Watch
	// returns; changes made while no Watch is parked arrive as one push.
	go func() {
		view, err := sess.Board.Look(playerID)
		if err != nil {
			return
		}
		s.pushBoard(send, sess, view)
		for {
			view, err := sess.Board.Watch(ctx, playerID)
			if err != nil {
				return
			}
			s.pushBoard(send, sess, view)
		}
	}()

	// Reader loop: handle incoming messages. A flip that parks on a held
	// card blocks this loop, so one client has at most one flip in flight.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: "invalid message"})
			continue
		}
		s.handleMessage(ctx, sess, playerID, send, msg)
	}

	s.log.Info("player disconnected",
		zap.String("player", playerID), zap.String("code", code))
}

func (s *Server) handleMessage(ctx context.Context, sess *session.Session, playerID string, send chan []byte, msg WSMessage) {
	switch msg.Type {
	case "flip":
		var fp flipPayload
		if err := json.Unmarshal(msg.Payload, &fp); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: "invalid flip payload"})
			return
		}
		if _, err := sess.Board.Flip(ctx, playerID, fp.Row, fp.Col); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: err.Error()})
			return
		}
		if err := s.manager.RecordScores(sess); err != nil {
			s.log.Warn("record scores", zap.String("code", sess.Code), zap.Error(err))
		}
		// The watch pump delivers the new board state.

	default:
		sendWSMsg(send, "error", errorPayload{Message: "unknown message type: " + msg.Type})
	}
}

func (s *Server) pushBoard(send chan []byte, sess *session.Session, view string) {
	sendWSMsg(send, "board", boardPayload{
		View:    view,
		Version: sess.Board.Version(),
		Scores:  sess.Board.Scores(),
	})
}

// guestID makes a player ID for clients that join without one. UUID hyphens
// are stripped to fit the player-ID alphabet.
func guestID() string {
	return "guest_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func sendWSMsg(send chan []byte, msgType string, payload any) {
	p, _ := json.Marshal(payload)
	msg, _ := json.Marshal(WSMessage{Type: msgType, Payload: p})
	select {
	case send <- msg:
	default:
	}
}

func sendWSError(ctx context.Context, conn *websocket.Conn, message string) {
	p, _ := json.Marshal(errorPayload{Message: message})
	msg, _ := json.Marshal(WSMessage{Type: "error", Payload: p})
	conn.Write(ctx, websocket.MessageText, msg)
}
