package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

// ErrStreamEnded is reported when the stream closes before a terminal envelope
var ErrStreamEnded = errors.New("stream ended unexpectedly without a terminal event")

// Sink receives the typed transitions decoded from the stream.
// *deployment.Session satisfies it.
type Sink interface {
	ApplyProgress(ev deployment.PhaseEvent) bool
	Complete(result deployment.DeploymentResult) bool
	Fail(err error) bool
}

// Consumer pumps one progress stream into a Sink. A Consumer holds no
// per-stream state and may be reused sequentially.
type Consumer struct {
	logger    hclog.Logger
	now       func() time.Time
	onWarning func(*ProtocolWarning)
}

// ConsumerOption configures a Consumer
type ConsumerOption func(*Consumer)

// WithWarningHandler registers a callback for protocol warnings
func WithWarningHandler(fn func(*ProtocolWarning)) ConsumerOption {
	return func(c *Consumer) {
		c.onWarning = fn
	}
}

// WithArrivalClock sets the clock used to timestamp events on arrival
func WithArrivalClock(now func() time.Time) ConsumerOption {
	return func(c *Consumer) {
		c.now = now
	}
}

// NewConsumer creates a stream consumer
func NewConsumer(logger hclog.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	c := &Consumer{
		logger: logger.Named("stream"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume reads r until a terminal envelope is applied to sink, and returns
// nil. If the input ends first, sink is failed with ErrStreamEnded and that
// error is returned. If ctx is cancelled the context error is returned and
// the sink is left for the caller to resolve.
func (c *Consumer) Consume(ctx context.Context, r io.Reader, sink Sink) error {
	reader := bufio.NewReader(r)

	for {
		// ReadString buffers partial lines across underlying reads
		line, readErr := reader.ReadString('\n')
		if line != "" {
			if c.handleLine(line, sink) {
				return nil
			}
		}

		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			err := ErrStreamEnded
			if readErr != io.EOF {
				err = fmt.Errorf("%w: read error: %w", ErrStreamEnded, readErr)
			}
			c.logger.Warn("progress stream closed before terminal event", "error", readErr)
			sink.Fail(err)
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

// handleLine applies one line and reports whether a terminal envelope was applied
func (c *Consumer) handleLine(line string, sink Sink) bool {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || strings.HasPrefix(line, ":") {
		return false
	}

	env, err := DecodeLine(line)
	if err != nil {
		var warning *ProtocolWarning
		switch {
		case errors.Is(err, ErrNotData):
			// event:, id: and retry: fields carry nothing for this protocol
		case errors.Is(err, ErrMalformed):
			c.logger.Debug("skipping unparseable line", "line", truncate(line, 120))
		case errors.As(err, &warning):
			c.logger.Warn("protocol warning", "kind", warning.Kind, "detail", warning.Detail)
			if c.onWarning != nil {
				c.onWarning(warning)
			}
		default:
			c.logger.Debug("skipping line", "error", err)
		}
		return false
	}

	switch env.Type {
	case TypeProgress:
		sink.ApplyProgress(env.PhaseEvent(c.now()))
		return false
	case TypeComplete:
		sink.Complete(env.DeploymentResult())
		return true
	case TypeError:
		sink.Fail(&deployment.BackendError{Reason: env.FailureReason()})
		return true
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
