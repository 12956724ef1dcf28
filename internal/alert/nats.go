package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures a NATS publisher.
type NATSConfig struct {
	URL string `yaml:"url"`
	// SubjectPrefix is prepended to each logical topic, e.g. "podguard" gives
	// "podguard.security-alerts".
	SubjectPrefix string `yaml:"subject_prefix"`
}

// natsConn is the subset of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATS publishes events as JSON messages.
type NATS struct {
	nc     natsConn
	prefix string
}

// NewNATS connects to the configured server.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("podguard"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the NATS subject for a logical topic.
func (n *NATS) Subject(t Topic) string {
	if n.prefix == "" {
		return string(t)
	}
	return n.prefix + "." + string(t)
}

func (n *NATS) Publish(_ context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.nc.Publish(n.Subject(e.Topic), b); err != nil {
		return fmt.Errorf("nats publish %s: %w", e.Type, err)
	}
	return nil
}

// Close drains the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
