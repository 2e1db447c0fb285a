package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kinds published after a message is persisted. Consumed by the
// notification pipeline; delivery here is best effort.
const (
	KindMessageCreated = "message.created"
	KindDirectSent     = "dm.sent"
)

type Envelope struct {
	Kind    string          `json:"kind"`
	RoomID  string          `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

type Publisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewPublisher(brokers []string, topic string, log *zap.SugaredLogger) *Publisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Publisher{writer: w, log: log}
}

// Publish writes an event envelope. A nil publisher is a no-op; failures
// are logged and never surfaced to the realtime path.
func (p *Publisher) Publish(ctx context.Context, kind, roomID string, payload any) {
	if p == nil || p.writer == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Errorw("marshal event payload", "kind", kind, "err", err)
		return
	}
	env := Envelope{Kind: kind, RoomID: roomID, Payload: body, At: time.Now().UTC()}
	b, _ := json.Marshal(env)
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(roomID), Value: b}); err != nil {
		p.log.Errorw("publish event", "kind", kind, "room", roomID, "err", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
