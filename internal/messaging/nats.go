// Package messaging publishes matching job lifecycle events on NATS and
// relays them to in-process listeners.
package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	SubjectJobs         = "matching.jobs"
	SubjectJobsWildcard = SubjectJobs + ".>"
	SubjectJobQueued    = SubjectJobs + ".queued"
	SubjectJobStarted   = SubjectJobs + ".started"
	SubjectJobCompleted = SubjectJobs + ".completed"
	SubjectJobFailed    = SubjectJobs + ".failed"
	SubjectJobRetrying  = SubjectJobs + ".retrying"
)

type EventType string

const (
	EventQueued    EventType = "queued"
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventRetrying  EventType = "retrying"
)

func (t EventType) Subject() string {
	return SubjectJobs + "." + string(t)
}

// JobEvent is the message body for every subject under matching.jobs.
type JobEvent struct {
	Type         EventType `json:"type"`
	JobID        string    `json:"jobId"`
	TargetUserID string    `json:"targetUserId"`
	MatchmakerID string    `json:"matchmakerId"`
	Attempt      int       `json:"attempt,omitempty"`
	Considered   int       `json:"candidatesConsidered,omitempty"`
	Matches      int       `json:"matchesFound,omitempty"`
	Created      int       `json:"created,omitempty"`
	Updated      int       `json:"updated,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher is what producers depend on. A nil-safe no-op is available via
// Discard.
type Publisher interface {
	Publish(ev JobEvent) error
}

type discard struct{}

func (discard) Publish(JobEvent) error { return nil }

// Discard drops every event.
var Discard Publisher = discard{}

type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "matchengine",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Client wraps the NATS connection with helpers for job events.
type Client struct {
	conn   *nats.Conn
	logger zerolog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func Connect(cfg Config, logger zerolog.Logger) (*Client, error) {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(ev JobEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	return c.conn.Publish(ev.Type.Subject(), b)
}

// SubscribeJobs delivers every job event. Malformed messages are logged and
// dropped.
func (c *Client) SubscribeJobs(handler func(JobEvent)) error {
	sub, err := c.conn.Subscribe(SubjectJobsWildcard, func(msg *nats.Msg) {
		var ev JobEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("drop malformed job event")
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectJobsWildcard, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

func (c *Client) Connected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

// Close drains subscriptions and closes the connection.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.mu.Lock()
	for _, s := range c.subs {
		_ = s.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()

	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
