package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event subjects are <prefix>.<suffix>.
const (
	SubjectRecorded = "recorded"
	SubjectDeleted  = "deleted"
)

// RecordedEvent is published after a successful upsert.
type RecordedEvent struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	PatternType string    `json:"pattern_type"`
	Strength    int       `json:"strength"`
	Occurrences int       `json:"occurrences"`
	Significant bool      `json:"significant"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// DeletedEvent is published after a user-initiated delete.
type DeletedEvent struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	PatternType string    `json:"pattern_type"`
	DeletedAt   time.Time `json:"deleted_at"`
}

// Publisher delivers insight events. Delivery is best effort.
type Publisher interface {
	PublishRecorded(ctx context.Context, ev RecordedEvent) error
	PublishDeleted(ctx context.Context, ev DeletedEvent) error
}

// NATSPublisher publishes events as JSON on NATS core subjects.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

// NewNATSPublisher wraps an existing connection. Close does not close a
// connection passed in this way.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// ConnectNATS dials url and returns a publisher that owns the connection.
func ConnectNATS(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("insightd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	p := NewNATSPublisher(nc, prefix)
	p.owned = true
	return p, nil
}

// Subject returns the full subject for suffix.
func (p *NATSPublisher) Subject(suffix string) string {
	return p.prefix + "." + suffix
}

func (p *NATSPublisher) publish(ctx context.Context, suffix, eventID string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &nats.Msg{
		Subject: p.Subject(suffix),
		Data:    data,
		Header:  nats.Header{},
	}
	// Lets JetStream-backed consumers drop redeliveries.
	msg.Header.Set(nats.MsgIdHdr, eventID)
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s event: %w", suffix, err)
	}
	return nil
}

// PublishRecorded implements Publisher.
func (p *NATSPublisher) PublishRecorded(ctx context.Context, ev RecordedEvent) error {
	return p.publish(ctx, SubjectRecorded, ev.EventID, ev)
}

// PublishDeleted implements Publisher.
func (p *NATSPublisher) PublishDeleted(ctx context.Context, ev DeletedEvent) error {
	return p.publish(ctx, SubjectDeleted, ev.EventID, ev)
}

// Close drains the connection when the publisher owns it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	if err := p.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

var _ Publisher = (*NATSPublisher)(nil)
