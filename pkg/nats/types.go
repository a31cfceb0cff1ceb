package nats

// PhaseChangedPayload is published when a session moves to a new non-terminal phase
type PhaseChangedPayload struct {
	SessionID     string `json:"sessionId"`
	Phase         string `json:"phase"`
	PreviousPhase string `json:"previousPhase,omitempty"`
	Progress      int    `json:"progress"`
	Message       string `json:"message,omitempty"`
	Timestamp     int64  `json:"timestamp"` // Unix milliseconds
}

// SucceededPayload is published when a session completes
type SucceededPayload struct {
	SessionID       string            `json:"sessionId"`
	InfraProjectID  string            `json:"infraProjectId,omitempty"`
	URLs            map[string]string `json:"urls,omitempty"`
	DurationSeconds float64           `json:"duration"`
	Timestamp       int64             `json:"timestamp"`
}

// FailedPayload is published when a session fails
type FailedPayload struct {
	SessionID string `json:"sessionId"`
	LastPhase string `json:"lastPhase,omitempty"` // phase reached before the failure
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}
