package deployment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase is a named stage of a deployment's lifecycle
type Phase string

const (
	PhaseInitializing    Phase = "initializing"
	PhaseCreatingProject Phase = "creating_project"
	PhasePushingCode     Phase = "pushing_code"
	PhaseBuilding        Phase = "building"
	PhaseDeploying       Phase = "deploying"
	PhaseHealthCheck     Phase = "health_check"
	PhaseComplete        Phase = "complete"
	PhaseFailed          Phase = "failed"
)

// phaseOrder is the expected order of non-failure phases
var phaseOrder = []Phase{
	PhaseInitializing,
	PhaseCreatingProject,
	PhasePushingCode,
	PhaseBuilding,
	PhaseDeploying,
	PhaseHealthCheck,
	PhaseComplete,
}

// IsTerminal reports whether no transition may leave the phase
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Known reports whether the phase is one of the enumerated phases
func (p Phase) Known() bool {
	return p == PhaseFailed || p.Rank() >= 0
}

// Rank returns the position of the phase in the expected order, or -1 for
// failed and unknown phases
func (p Phase) Rank() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// AppKind is the kind of application being deployed
type AppKind string

const (
	AppKindWebsite AppKind = "website"
	AppKindApp     AppKind = "app"
	AppKindTool    AppKind = "tool"
)

// ErrInvalidRequest is returned when a DeploymentRequest fails validation
var ErrInvalidRequest = errors.New("invalid deployment request")

// DeploymentRequest is the immutable input of a deployment trigger
type DeploymentRequest struct {
	// ProjectID identifies the project to deploy
	ProjectID string `json:"projectId"`

	// ProjectName is the human-readable project name
	ProjectName string `json:"projectName"`

	// AdminEmail is the administrator contact for the provisioned services
	AdminEmail string `json:"adminEmail"`

	// AppKind is the application kind (website, app, tool)
	AppKind AppKind `json:"appType"`
}

// Validate checks that the request can be sent to the backend
func (r DeploymentRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return fmt.Errorf("%w: project ID cannot be empty", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ProjectName) == "" {
		return fmt.Errorf("%w: project name cannot be empty", ErrInvalidRequest)
	}
	if !strings.Contains(r.AdminEmail, "@") {
		return fmt.Errorf("%w: admin email %q is not a valid address", ErrInvalidRequest, r.AdminEmail)
	}
	switch r.AppKind {
	case AppKindWebsite, AppKindApp, AppKindTool:
	default:
		return fmt.Errorf("%w: unknown app kind %q (expected website, app or tool)", ErrInvalidRequest, r.AppKind)
	}
	return nil
}

// PhaseEvent is one progress update parsed from the stream
type PhaseEvent struct {
	Phase     Phase
	Progress  int
	Message   string
	Timestamp time.Time

	// NoProgress marks an update without a percent; Progress is ignored
	NoProgress bool
}

// Well-known endpoint names in a DeploymentResult
const (
	URLFrontend       = "frontend"
	URLAdmin          = "admin"
	URLBackend        = "backend"
	URLInfraDashboard = "infra_dashboard"
)

// DeploymentResult is the terminal payload of a successful deployment
type DeploymentResult struct {
	// URLs maps endpoint names to URLs; any subset may be present
	URLs map[string]string `json:"urls"`

	// DurationSeconds is the backend-reported deployment duration
	DurationSeconds float64 `json:"duration"`

	// InfraProjectID is the opaque handle used for redeploy and polling
	InfraProjectID string `json:"infraProjectId,omitempty"`
}

// Copy returns a deep copy of the result
func (r DeploymentResult) Copy() DeploymentResult {
	out := r
	if r.URLs != nil {
		out.URLs = make(map[string]string, len(r.URLs))
		for k, v := range r.URLs {
			out.URLs[k] = v
		}
	}
	return out
}

// ServiceStatus is the reconciliation view of one infrastructure component
type ServiceStatus struct {
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
	IsDeployed bool   `json:"isDeployed"`
	IsFailed   bool   `json:"isFailed"`
}

// Settled reports whether the service has reached a final state
func (s ServiceStatus) Settled() bool {
	return s.IsDeployed || s.IsFailed
}

// HistoryEntry is a backend-owned record of a past deployment
type HistoryEntry struct {
	ID              string            `json:"id"`
	ProjectName     string            `json:"projectName"`
	Industry        string            `json:"industry,omitempty"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"createdAt"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	URLs            map[string]string `json:"urls,omitempty"`
	InfraProjectID  string            `json:"infraProjectId,omitempty"`
	DurationSeconds float64           `json:"duration,omitempty"`
}
