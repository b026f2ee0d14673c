package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types pushed to dashboards.
const (
	TypeAttendanceRecorded = "attendance.recorded"
	TypeSessionSet         = "session.set"
	TypeSessionCleared     = "session.cleared"
)

// Event is one notification for connected dashboards.
type Event struct {
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an event.
func NewEvent(typ string, at time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, At: at.UTC(), Data: raw}, nil
}

// Publisher is what the services need to announce changes.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Broker fans events out to subscribers.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }

// Memory is an in-process broker for single-instance deployments and tests. Slow
// subscribers miss events rather than blocking publishers.
type Memory struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	size int
}

// NewMemory creates a broker with per-subscriber buffers of size.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 16
	}
	return &Memory{subs: make(map[chan Event]struct{}), size: size}
}

// Publish delivers evt to every current subscriber.
func (m *Memory) Publish(_ context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that is closed once ctx is done.
func (m *Memory) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, m.size)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// Redis fans events out across API replicas with PUBLISH/SUBSCRIBE.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis builds a broker on channel.
func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = "attendance:live"
	}
	return &Redis{client: client, channel: channel}
}

// Publish sends evt to the channel.
func (r *Redis) Publish(ctx context.Context, evt Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, raw).Err()
}

// Subscribe streams decoded events until ctx is done.
func (r *Redis) Subscribe(ctx context.Context) (<-chan Event, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan Event)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					slog.Warn("dropping malformed live event", "error", err)
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
