package nats

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

// Base subject constants (without prefix)
const (
	baseSubjectPhaseChanged        = "deployment.phase.changed"
	baseSubjectDeploymentSucceeded = "deployment.succeeded"
	baseSubjectDeploymentFailed    = "deployment.failed"
)

// publisher is the JetStream subset used by Client. nats.JetStreamContext satisfies it.
type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Client publishes deployment session events
type Client struct {
	conn   *nats.Conn
	js     publisher
	logger hclog.Logger
	prefix string // Stream prefix for namespace isolation (e.g., "cs" -> "cs.deployment.succeeded")

	mu        sync.Mutex
	lastPhase map[string]deployment.Phase
}

// NewClient creates a NATS client with NKey authentication and stream prefix support.
// The prefix is used for namespace isolation (e.g., "cs" -> subjects become "cs.deployment.succeeded")
func NewClient(servers string, nkeySeed string, prefix string, logger hclog.Logger) (*Client, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("nats")

	// Parse the NKey seed
	kp, err := nkeys.FromSeed([]byte(nkeySeed))
	if err != nil {
		return nil, fmt.Errorf("failed to parse NKey seed: %w", err)
	}

	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	opts := []nats.Option{
		nats.Nkey(pub, func(nonce []byte) ([]byte, error) {
			sig, err := kp.Sign(nonce)
			if err != nil {
				return nil, fmt.Errorf("failed to sign nonce: %w", err)
			}
			return sig, nil
		}),
		nats.Name("csd"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(servers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	logger.Info("Connected to NATS", "servers", servers, "prefix", prefix)

	client := newClient(js, prefix, logger)
	client.conn = nc
	return client, nil
}

func newClient(js publisher, prefix string, logger hclog.Logger) *Client {
	return &Client{
		js:        js,
		logger:    logger,
		prefix:    prefix,
		lastPhase: make(map[string]deployment.Phase),
	}
}

// withPrefix adds the stream prefix to a subject if prefix is set
func (c *Client) withPrefix(subject string) string {
	if c.prefix == "" {
		return subject
	}
	return c.prefix + "." + subject
}

// Observer returns a snapshot observer for the orchestrator. Phase events
// are only published when the phase changes; publish failures are logged.
func (c *Client) Observer() func(deployment.Snapshot) {
	return func(snap deployment.Snapshot) {
		if err := c.HandleSnapshot(snap); err != nil {
			c.logger.Warn("Failed to publish session event", "session", snap.ID, "error", err)
		}
	}
}

// HandleSnapshot publishes the event, if any, implied by a session snapshot
func (c *Client) HandleSnapshot(snap deployment.Snapshot) error {
	ts := snap.UpdatedAt.UnixMilli()

	c.mu.Lock()
	previous, seen := c.lastPhase[snap.ID]
	if snap.Terminal() {
		delete(c.lastPhase, snap.ID)
	} else {
		c.lastPhase[snap.ID] = snap.Phase
	}
	c.mu.Unlock()

	switch {
	case snap.Phase == deployment.PhaseComplete:
		payload := SucceededPayload{
			SessionID:      snap.ID,
			InfraProjectID: snap.InfraProjectID(),
			Timestamp:      ts,
		}
		if snap.Result != nil {
			payload.URLs = snap.Result.URLs
			payload.DurationSeconds = snap.Result.DurationSeconds
		}
		return c.PublishSucceeded(payload)

	case snap.Phase == deployment.PhaseFailed:
		reason := "deployment failed"
		if snap.Err != nil {
			reason = snap.Err.Error()
		}
		return c.PublishFailed(FailedPayload{
			SessionID: snap.ID,
			LastPhase: string(previous),
			Error:     reason,
			Timestamp: ts,
		})

	case seen && previous == snap.Phase:
		return nil
	}

	return c.PublishPhaseChanged(PhaseChangedPayload{
		SessionID:     snap.ID,
		Phase:         string(snap.Phase),
		PreviousPhase: string(previous),
		Progress:      snap.Progress,
		Message:       snap.Message,
		Timestamp:     ts,
	})
}

// PublishPhaseChanged publishes a phase change event
func (c *Client) PublishPhaseChanged(payload PhaseChangedPayload) error {
	return c.publish(c.withPrefix(baseSubjectPhaseChanged), payload)
}

// PublishSucceeded publishes a deployment succeeded event
func (c *Client) PublishSucceeded(payload SucceededPayload) error {
	return c.publish(c.withPrefix(baseSubjectDeploymentSucceeded), payload)
}

// PublishFailed publishes a deployment failed event
func (c *Client) PublishFailed(payload FailedPayload) error {
	return c.publish(c.withPrefix(baseSubjectDeploymentFailed), payload)
}

// publish marshals payload and publishes it to JetStream
func (c *Client) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if _, err := c.js.Publish(subject, data); err != nil {
		c.logger.Error("Failed to publish event", "subject", subject, "error", err)
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	if c.conn != nil {
		if err := c.conn.Flush(); err != nil {
			// Published to JetStream already; a flush failure is only a warning
			c.logger.Warn("Failed to flush NATS connection", "subject", subject, "error", err)
		}
	}

	c.logger.Debug("Published event", "subject", subject)
	return nil
}

// Close drains and closes the NATS connection
func (c *Client) Close() error {
	if c.conn != nil {
		c.conn.Drain()
		c.conn.Close()
		c.logger.Info("NATS connection closed")
	}
	return nil
}
