package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/live"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection.
type Client struct {
	ID     string
	UserID uuid.UUID
	Role   string

	hub    *Hub
	orch   *live.Orchestrator
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger

	room      string    // set by Hub.Join
	sessionID string    // set after a successful student join
	historyID uuid.UUID // set after a successful student join
}

type startSessionReq struct {
	PollID uuid.UUID `json:"poll_id"`
}

type askQuestionReq struct {
	PollID       uuid.UUID `json:"poll_id"`
	HistoryID    uuid.UUID `json:"history_id"`
	QuestionID   string    `json:"question_id"`
	TimeLimitSec int       `json:"time_limit_sec"`
}

type endQuestionReq struct {
	HistoryID  uuid.UUID `json:"history_id"`
	QuestionID string    `json:"question_id"`
}

type kickReq struct {
	HistoryID uuid.UUID `json:"history_id"`
	SessionID string    `json:"session_id"`
}

type endSessionReq struct {
	HistoryID uuid.UUID `json:"history_id"`
}

type joinReq struct {
	PollID    uuid.UUID `json:"poll_id"`
	HistoryID uuid.UUID `json:"history_id"`
	Name      string    `json:"name"`
	SessionID string    `json:"session_id"`
}

type submitAnswerReq struct {
	HistoryID  uuid.UUID `json:"history_id"`
	QuestionID string    `json:"question_id"`
	OptionID   string    `json:"option_id"`
	SessionID  string    `json:"session_id"`
}

type chatSendReq struct {
	HistoryID uuid.UUID `json:"history_id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The bearer
// credential is verified and an identity resolved before any session event is
// processed; unauthenticated connections are refused at the door.
func ServeWs(hub *Hub, orch *live.Orchestrator, logger *zap.Logger, jwtValidate func(token string) (userID, role string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		userIDStr, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			UserID: userID,
			Role:   role,
			hub:    hub,
			orch:   orch,
			conn:   conn,
			send:   make(chan WSMessage, 256),
			logger: logger,
		}
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		ctx := context.Background()
		if c.sessionID != "" && c.historyID != uuid.Nil {
			c.orch.DisconnectStudent(ctx, c.historyID, c.sessionID)
		}
		// Teacher-connection loss: in-memory cleanup only, no end notice.
		c.orch.TeardownTeacher(c.UserID)
		c.hub.Leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.dispatch(context.Background(), msg)
	}
}

func (c *Client) dispatch(ctx context.Context, msg WSMessage) {
	switch msg.Event {
	case "start-session":
		var req startSessionReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError("invalid start-session payload")
			return
		}
		sess, err := c.orch.StartSession(ctx, req.PollID, c.UserID)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.hub.Join(sess.Room, c)
		c.sendEvent(live.EventSessionStarted, gin.H{"history_id": sess.HistoryID})

	case "ask-question":
		var req askQuestionReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError("invalid ask-question payload")
			return
		}
		started, err := c.orch.AskQuestion(ctx, c.UserID, req.HistoryID, req.QuestionID, req.TimeLimitSec)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.sendEvent(live.EventQuestionStarted, started)

	case "end-question":
		var req endQuestionReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError("invalid end-question payload")
			return
		}
		if err := c.orch.EndQuestion(ctx, c.UserID, req.HistoryID, req.QuestionID); err != nil {
			c.sendError(err.Error())
		}

	case "kick":
		var req kickReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError("invalid kick payload")
			return
		}
		if err := c.orch.Kick(ctx, c.UserID, req.HistoryID, req.SessionID); err != nil {
			c.sendError(err.Error())
		}

	case "end-session":
		var req endSessionReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError("invalid end-session payload")
			return
		}
		if err := c.orch.EndSession(ctx, c.UserID, req.HistoryID); err != nil {
			c.sendError(err.Error())
		}

	case "join":
		var req joinReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError("invalid join payload")
			return
		}
		room := live.RoomName(req.PollID, req.HistoryID)
		c.hub.Join(room, c)
		ss, err := c.orch.Join(ctx, c.UserID, req.HistoryID, req.Name, req.SessionID, c.ID)
		if err != nil {
			c.hub.Leave(c)
			c.sendError(err.Error())
			return
		}
		c.sessionID = req.SessionID
		c.historyID = req.HistoryID
		c.sendEvent(live.EventJoined, gin.H{"session": ss})

	case "submit-answer":
		var req submitAnswerReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError("invalid submit-answer payload")
			return
		}
		if err := c.orch.SubmitAnswer(ctx, req.HistoryID, req.QuestionID, req.OptionID, req.SessionID); err != nil {
			c.sendError(err.Error())
		}

	case "leave":
		if c.sessionID != "" && c.historyID != uuid.Nil {
			c.orch.DisconnectStudent(ctx, c.historyID, c.sessionID)
			c.sessionID = ""
			c.historyID = uuid.Nil
		}
		c.hub.Leave(c)

	case "chat-send":
		var req chatSendReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError("invalid chat-send payload")
			return
		}
		if err := c.orch.Chat(ctx, c.UserID, req.HistoryID, c.sessionID, req.From, req.Text); err != nil {
			c.sendError(err.Error())
		}

	default:
		// ignore
	}
}

func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

func (c *Client) sendError(message string) {
	c.sendEvent(live.EventError, gin.H{"message": message})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
