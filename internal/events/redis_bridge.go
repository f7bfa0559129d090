package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/client-roster/internal/domain"
	"github.com/spec-kit/client-roster/internal/roster"
)

// ErrBridgeDisabled is returned by Listen when no Redis client is configured.
var ErrBridgeDisabled = errors.New("redis change bridge disabled")

// ChangeMessage is the wire form of a client change on the Redis channel.
type ChangeMessage struct {
	ID            string         `json:"id"`
	ChangedFields map[string]any `json:"changed_fields,omitempty"`
	Deleted       bool           `json:"deleted,omitempty"`
}

// RedisBridge fans confirmed client events out to other instances over a
// Redis channel and feeds changes published there back into local sessions.
type RedisBridge struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBridge builds a bridge. A nil client yields a disabled bridge.
func NewRedisBridge(client *redis.Client, channel string, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{client: client, channel: channel, logger: logger}
}

// Enabled reports whether the bridge has a Redis client.
func (b *RedisBridge) Enabled() bool {
	return b != nil && b.client != nil && b.channel != ""
}

// Attach forwards every client event published on d to Redis.
func (b *RedisBridge) Attach(d Dispatcher) {
	if !b.Enabled() {
		return
	}
	for _, eventType := range ClientEventTypes {
		d.Subscribe(eventType, b.Forward)
	}
}

// Forward publishes a single event to the channel.
func (b *RedisBridge) Forward(ctx context.Context, event Event) error {
	if !b.Enabled() {
		return nil
	}
	payload, err := EncodeChange(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// Listen subscribes to the channel and hands decoded changes to sink until
// ctx is cancelled. Undecodable messages are logged and skipped.
func (b *RedisBridge) Listen(ctx context.Context, sink func(roster.ChangeEvent)) error {
	if !b.Enabled() {
		return ErrBridgeDisabled
	}
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("listening for client changes", zap.String("channel", b.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			change, err := DecodeChange([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping malformed client change", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			sink(change)
		}
	}
}

// EncodeChange renders a client event as a ChangeMessage.
func EncodeChange(event Event) ([]byte, error) {
	msg := ChangeMessage{ID: event.ClientID}
	switch event.Type {
	case EventClientDeleted:
		msg.Deleted = true
	case EventClientCreated, EventClientUpdated:
		payload, ok := event.Payload.(ClientChangedPayload)
		if !ok {
			return nil, fmt.Errorf("event %s: unexpected payload %T", event.Type, event.Payload)
		}
		msg.ChangedFields = RecordFields(payload.Record)
	default:
		return nil, fmt.Errorf("unsupported event type %q", event.Type)
	}
	return json.Marshal(msg)
}

// DecodeChange parses a ChangeMessage into a cache change event.
func DecodeChange(data []byte) (roster.ChangeEvent, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return roster.ChangeEvent{}, fmt.Errorf("decode change: %w", err)
	}
	if msg.ID == "" {
		return roster.ChangeEvent{}, errors.New("decode change: missing id")
	}
	if msg.Deleted {
		return roster.ChangeEvent{ID: msg.ID, Deleted: true}, nil
	}
	patch, err := domain.PatchFromChangedFields(msg.ChangedFields)
	if err != nil {
		return roster.ChangeEvent{}, fmt.Errorf("decode change %s: %w", msg.ID, err)
	}
	return roster.ChangeEvent{ID: msg.ID, Patch: patch}, nil
}

// RecordFields flattens a record into column-keyed changed fields.
func RecordFields(rec domain.ClientRecord) map[string]any {
	fields := map[string]any{
		"first_name":        optional(rec.FirstName),
		"last_name":         optional(rec.LastName),
		"company_name":      optional(rec.CompanyName),
		"nip":               optional(rec.TaxID),
		"phone":             optional(rec.Phone),
		"email":             optional(rec.Email),
		"website":           optional(rec.Website),
		"location":          optional(rec.Location),
		"owner_id":          optional(rec.OwnerID),
		"edited_by":         optional(rec.EditedBy),
		"notes":             rec.Notes,
		"status":            string(rec.Status),
		"status_changed_at": rec.StatusChangedAt.UTC().Format(time.RFC3339Nano),
		"last_contact_at":   nil,
		"updated_at":        rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.LastContactAt != nil {
		fields["last_contact_at"] = rec.LastContactAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
