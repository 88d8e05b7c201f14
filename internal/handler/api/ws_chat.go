package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"EMSpark/internal/domain/models"
	xhttp "EMSpark/pkg/http"
	xlogger "EMSpark/pkg/logger"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
)

// ChatReply is one websocket answer frame.
type ChatReply struct {
	ID       string                  `json:"id"`
	Format   string                  `json:"format,omitempty"`
	Body     string                  `json:"body,omitempty"`
	Report   *models.Report          `json:"report,omitempty"`
	Errors   []xhttp.ValidationError `json:"errors,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Duration int64                   `json:"duration_ms"`
}

// ChatHandler answers one question per text frame over a websocket.
type ChatHandler struct {
	logger   *xlogger.Logger
	reports  ReportAnswerer
	upgrader websocket.Upgrader
}

// NewChatHandler accepts connections from any origin when allowed is
// empty or contains "*"; otherwise origins are matched by prefix.
func NewChatHandler(logger *xlogger.Logger, reports ReportAnswerer, allowed []string) *ChatHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &ChatHandler{
		logger:  logger,
		reports: reports,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 8192,
			CheckOrigin:     originChecker(allowed),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.HasPrefix(origin, a) {
				return true
			}
		}
		return false
	}
}

func (h *ChatHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/chat", h.Serve)
}

// Serve upgrades the connection and runs the session until the peer leaves.
func (h *ChatHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("Websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	s := &chatSession{conn: conn, h: h, done: make(chan struct{})}
	s.run(c)
	return nil
}

type chatSession struct {
	conn *websocket.Conn
	h    *ChatHandler
	wmu  sync.Mutex
	done chan struct{}
}

func (s *chatSession) run(c echo.Context) {
	defer s.conn.Close()
	defer close(s.done)

	s.conn.SetReadLimit(wsMaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go s.pingLoop()

	ctx := c.Request().Context()
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.h.logger.Warn("Websocket read error", xlogger.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := s.write(s.answer(ctx, data)); err != nil {
			s.h.logger.Warn("Websocket write error", xlogger.Error(err))
			return
		}
	}
}

// answer accepts either a bare question or a ReportRequest object.
func (s *chatSession) answer(ctx context.Context, data []byte) ChatReply {
	req := models.ReportRequest{}
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal(data, &req); err != nil {
			return ChatReply{Error: "malformed request: " + err.Error()}
		}
	} else {
		req.Query = text
	}
	if verr := xhttp.DefaultAndValidate(&req); verr != nil {
		return ChatReply{ID: req.ID, Errors: verr}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	resp, err := s.h.reports.Answer(ctx, req)
	reply := ChatReply{
		ID:       resp.ID,
		Format:   resp.Format,
		Body:     resp.Body,
		Report:   resp.Report,
		Duration: resp.Duration,
	}
	if err != nil {
		reply.Error = resp.Error
		if reply.Error == "" {
			reply.Error = err.Error()
		}
	}
	return reply
}

func (s *chatSession) write(reply ChatReply) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(reply)
}

func (s *chatSession) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.wmu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			s.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
