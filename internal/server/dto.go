package server

import (
	"encoding/json"

	"launchpath/internal/domain"
)

// Request payloads

type SaveIdeaRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ToggleTaskRequest struct {
	Completed bool `json:"completed"`
}

type SetOnboardingRequest struct {
	Path            string `json:"path" enum:"idea,explore,skip"`
	IdeaTitle       string `json:"idea_title,omitempty"`
	IdeaDescription string `json:"idea_description,omitempty"`
}

type SetSpotlightModeRequest struct {
	Mode string `json:"mode" enum:"validation,tasks,connections,actions"`
}

// Response payloads

type IdeaResponse struct {
	domain.Idea
	Created bool `json:"created"`
}

type ProgressResponse struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Progress  int `json:"progress" minimum:"0" maximum:"100"`
}

type ValidateResponse struct {
	Result domain.ValidationResult   `json:"result"`
	Tasks  []domain.RegistrationTask `json:"tasks"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	OwnerID    string          `json:"owner_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage([]byte("{}"))
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage([]byte(e.Payload))
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		OwnerID:    e.OwnerID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    payload,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}
