package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/planpal-realtime/internal/config"
	"github.com/fathima-sithara/planpal-realtime/internal/fanout"
)

// Session is one live websocket connection. It implements fanout.Conn.
type Session struct {
	id     string
	userID string // verified at handshake
	conn   *websocket.Conn
	send   chan []byte

	engine  *fanout.Engine
	cfg     *config.Config
	log     *zap.SugaredLogger
	limiter *rate.Limiter
	closed  int32
}

func NewSession(id, userID string, conn *websocket.Conn, engine *fanout.Engine, cfg *config.Config, log *zap.SugaredLogger) *Session {
	return &Session{
		id:      id,
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, 256),
		engine:  engine,
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.WS.RateLimitPerSec), cfg.WS.RateLimitPerSec),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// Emit queues an outbound event. Frames to a slow consumer are dropped
// rather than blocking the broadcaster.
func (s *Session) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Errorw("marshal outbound payload", "event", event, "err", err)
		return
	}
	b, _ := json.Marshal(Envelope{Event: event, Data: data})
	select {
	case s.send <- b:
	default:
		s.log.Warnw("send buffer full, dropping frame", "session", s.id, "event", event)
	}
}

func (s *Session) readPump() {
	defer func() {
		s.engine.Disconnect(context.Background(), s)
		s.close()
	}()

	s.conn.SetReadLimit(s.cfg.WS.MaxMessageSizeBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadDeadline))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadDeadline))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if !s.limiter.Allow() {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			continue
		}
		s.engine.Dispatch(context.Background(), s, env.Event, env.Data)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteDeadline))
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
			s.engine.RefreshPresence(context.Background(), s)
		}
	}
}

func (s *Session) close() {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		_ = s.conn.Close()
	}
}
