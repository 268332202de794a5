// Package spotlight defines the read-only contract between the onboarding
// pipeline and the UI panel that renders whichever stage is active.
package spotlight

import "launchpath/internal/domain"

type Mode string

const (
	ModeValidation  Mode = "validation"
	ModeTasks       Mode = "tasks"
	ModeConnections Mode = "connections"
	ModeActions     Mode = "actions"
)

// Valid reports whether m is one of the four renderable modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeValidation, ModeTasks, ModeConnections, ModeActions:
		return true
	}
	return false
}

// State is a snapshot pushed to the presenter on every transition. The
// pipeline drives validation/tasks; connections/actions arrive from
// unrelated UI navigation and may be set at any time.
type State struct {
	Mode             Mode                      `json:"mode"`
	Stage            string                    `json:"stage"`
	ValidationResult *domain.ValidationResult  `json:"validation_result,omitempty"`
	Tasks            []domain.RegistrationTask `json:"tasks,omitempty"`
	Progress         int                       `json:"progress"`
}

// Presenter observes pipeline state. Implementations must treat the state as
// read-only.
type Presenter interface {
	Render(State)
}

// PresenterFunc adapts a function to the Presenter interface.
type PresenterFunc func(State)

func (f PresenterFunc) Render(s State) { f(s) }
