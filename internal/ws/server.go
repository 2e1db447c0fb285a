package ws

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/planpal-realtime/internal/auth"
	"github.com/fathima-sithara/planpal-realtime/internal/config"
	"github.com/fathima-sithara/planpal-realtime/internal/fanout"
)

type Server struct {
	engine    *fanout.Engine
	validator *auth.Validator
	cfg       *config.Config
	log       *zap.SugaredLogger
}

func NewServer(engine *fanout.Engine, validator *auth.Validator, cfg *config.Config, log *zap.SugaredLogger) *Server {
	return &Server{engine: engine, validator: validator, cfg: cfg, log: log}
}

// Handle upgrades a connection into a realtime session. The handshake
// carries the JWT as ?token=; the session is rejected before any room
// or presence state is touched if it does not verify.
func (s *Server) Handle() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		token := conn.Query("token")
		if token == "" {
			_ = conn.Close()
			return
		}
		uid, err := s.validator.Validate(token)
		if err != nil {
			s.log.Debugw("websocket handshake rejected", "err", err)
			_ = conn.Close()
			return
		}

		sess := NewSession(uuid.NewString(), uid, conn, s.engine, s.cfg, s.log)
		s.engine.Connect(sess)
		go sess.writePump()
		sess.readPump()
	}
}
