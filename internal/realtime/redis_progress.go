// Package realtime pushes run progress to Redis subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"quizgen/internal/logger"
	"quizgen/internal/models"
)

const (
	EventProgress = "progress"
	EventFinal    = "final"
)

// ProgressMessage is the payload published for every progress write.
type ProgressMessage struct {
	Event    string             `json:"event"`
	Progress models.RunProgress `json:"progress"`
}

// ProgressBus publishes progress snapshots on one channel per document.
type ProgressBus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func NewProgressBus(addr, prefix string, log *logger.Logger) (*ProgressBus, error) {
	if log == nil {
		log = logger.Nop()
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &ProgressBus{log: log.With("service", "ProgressBus"), rdb: rdb, prefix: normalizePrefix(prefix)}, nil
}

func (b *ProgressBus) Channel(documentID string) string {
	return channelName(b.prefix, documentID)
}

func (b *ProgressBus) WriteProgress(ctx context.Context, p models.RunProgress) error {
	return b.publish(ctx, EventProgress, p)
}

func (b *ProgressBus) WriteFinal(ctx context.Context, p models.RunProgress) error {
	return b.publish(ctx, EventFinal, p)
}

func (b *ProgressBus) publish(ctx context.Context, event string, p models.RunProgress) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("progress bus not initialized")
	}
	raw, err := encodeMessage(event, p)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.Channel(p.DocumentID), raw).Err(); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Subscribe forwards messages for one document until ctx is done or a final
// message arrives. onReady, when set, runs once Redis has confirmed the
// subscription and before any message is forwarded; returning false ends the
// stream right away.
func (b *ProgressBus) Subscribe(ctx context.Context, documentID string, onReady func() bool, onMsg func(ProgressMessage)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("progress bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.Channel(documentID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	ch := sub.Channel()
	if onReady != nil && !onReady() {
		return nil
	}
	return b.forward(ctx, documentID, ch, onMsg)
}

func (b *ProgressBus) forward(ctx context.Context, documentID string, ch <-chan *goredis.Message, onMsg func(ProgressMessage)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok || m == nil {
				return nil
			}
			msg, err := decodeMessage(m.Payload)
			if err != nil {
				b.log.Warn("bad progress payload", "document_id", documentID, "error", err)
				continue
			}
			onMsg(msg)
			if msg.Event == EventFinal {
				return nil
			}
		}
	}
}

func (b *ProgressBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func encodeMessage(event string, p models.RunProgress) ([]byte, error) {
	raw, err := json.Marshal(ProgressMessage{Event: event, Progress: p})
	if err != nil {
		return nil, fmt.Errorf("encode progress message: %w", err)
	}
	return raw, nil
}

func decodeMessage(payload string) (ProgressMessage, error) {
	var msg ProgressMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return ProgressMessage{}, fmt.Errorf("decode progress message: %w", err)
	}
	return msg, nil
}

func normalizePrefix(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), ":")
	if p == "" {
		return "quizgen:progress"
	}
	return p
}

func channelName(prefix, documentID string) string {
	return prefix + ":" + documentID
}
