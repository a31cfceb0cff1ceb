// Package stream decodes the deployment progress stream: newline-delimited
// "data: <json>" events, each terminated by a blank line.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

// EnvelopeType is the "type" discriminator of an envelope
type EnvelopeType string

const (
	TypeProgress EnvelopeType = "progress"
	TypeComplete EnvelopeType = "complete"
	TypeError    EnvelopeType = "error"
)

// dataPrefix marks an event payload line
const dataPrefix = "data:"

var (
	// ErrNotData is returned for lines that do not carry an envelope
	ErrNotData = errors.New("not a data line")

	// ErrMalformed is returned when a data line is not valid JSON. Such lines
	// are expected at chunk boundaries and are skipped.
	ErrMalformed = errors.New("malformed envelope")
)

// WarningKind classifies a ProtocolWarning
type WarningKind string

const (
	WarningUnknownType       WarningKind = "unknown_type"
	WarningMissingType       WarningKind = "missing_type"
	WarningMalformedTerminal WarningKind = "malformed_terminal"
)

// ProtocolWarning is a decoded envelope the client does not understand. It
// usually signals a client/server version mismatch.
type ProtocolWarning struct {
	Kind   WarningKind
	Detail string
	Raw    string
}

func (w *ProtocolWarning) Error() string {
	return fmt.Sprintf("protocol warning (%s): %s", w.Kind, w.Detail)
}

// ResultPayload is the "result" object of a complete envelope
type ResultPayload struct {
	URLs             map[string]string `json:"urls"`
	Duration         float64           `json:"duration"`
	InfraProjectID   string            `json:"infraProjectId,omitempty"`
	RailwayProjectID string            `json:"railwayProjectId,omitempty"`
}

// Envelope is one decoded unit of the progress stream. Unknown fields are ignored.
type Envelope struct {
	Type     EnvelopeType   `json:"type"`
	Phase    string         `json:"phase,omitempty"`
	Progress *float64       `json:"progress,omitempty"`
	Message  string         `json:"message,omitempty"`
	Result   *ResultPayload `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Percent returns a progress value for an Envelope literal
func Percent(v float64) *float64 {
	return &v
}

// Terminal reports whether the envelope ends the stream
func (e Envelope) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// PhaseEvent converts a progress envelope, stamping it with the arrival time.
// An envelope without a progress field yields an event with NoProgress set.
func (e Envelope) PhaseEvent(at time.Time) deployment.PhaseEvent {
	ev := deployment.PhaseEvent{
		Phase:      deployment.Phase(e.Phase),
		Message:    e.Message,
		Timestamp:  at,
		NoProgress: e.Progress == nil,
	}
	if e.Progress != nil {
		ev.Progress = int(math.Round(*e.Progress))
	}
	return ev
}

// DeploymentResult converts the result of a complete envelope
func (e Envelope) DeploymentResult() deployment.DeploymentResult {
	if e.Result == nil {
		return deployment.DeploymentResult{}
	}
	infraID := e.Result.InfraProjectID
	if infraID == "" {
		infraID = e.Result.RailwayProjectID
	}
	return deployment.DeploymentResult{
		URLs:            e.Result.URLs,
		DurationSeconds: e.Result.Duration,
		InfraProjectID:  infraID,
	}.Copy()
}

// FailureReason returns the backend's error text, verbatim
func (e Envelope) FailureReason() string {
	if e.Error == "" {
		return "deployment failed"
	}
	return e.Error
}

// DecodeLine decodes a single stream line. Lines without the data marker
// return ErrNotData; unparseable payloads return ErrMalformed; envelopes the
// client does not understand return a *ProtocolWarning.
func DecodeLine(line string) (Envelope, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return Envelope{}, ErrNotData
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if data == "" {
		return Envelope{}, ErrNotData
	}
	return Decode([]byte(data))
}

// Decode decodes an envelope JSON payload
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeProgress, TypeError:
		return env, nil
	case TypeComplete:
		if env.Result == nil {
			return env, &ProtocolWarning{
				Kind:   WarningMalformedTerminal,
				Detail: "complete envelope carries no result",
				Raw:    string(data),
			}
		}
		return env, nil
	case "":
		return env, &ProtocolWarning{
			Kind:   WarningMissingType,
			Detail: "envelope has no type field",
			Raw:    string(data),
		}
	default:
		return env, &ProtocolWarning{
			Kind:   WarningUnknownType,
			Detail: fmt.Sprintf("unrecognized envelope type %q", env.Type),
			Raw:    string(data),
		}
	}
}

// Encode serializes an envelope as one stream event including the blank-line
// terminator
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	out := make([]byte, 0, len(data)+len(dataPrefix)+3)
	out = append(out, dataPrefix...)
	out = append(out, ' ')
	out = append(out, data...)
	out = append(out, '\n', '\n')
	return out, nil
}
