// Package model contains domain models passed between layers.
package model

import "time"

// Type classifies a registered model.
type Type string

// Supported model types.
const (
	TypeLLM        Type = "llm"
	TypeVision     Type = "vision"
	TypeAudio      Type = "audio"
	TypeMultimodal Type = "multimodal"
)

// Valid reports whether t is empty or one of the known types.
func (t Type) Valid() bool {
	switch t {
	case "", TypeLLM, TypeVision, TypeAudio, TypeMultimodal:
		return true
	}
	return false
}

// Model is a registered AI model owned by an account.
type Model struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	Description     string         `json:"description,omitempty"`
	Type            Type           `json:"model_type,omitempty"`
	ParametersCount string         `json:"parameters_count,omitempty"`
	OwnerID         string         `json:"owner_id"`
	Metadata        map[string]any `json:"model_metadata"`
	Active          bool           `json:"is_active"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty"`
}

// Summary is the public view of a model carried in events.
type Summary struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Owner   string `json:"owner,omitempty"`
}

// Summary returns the event view of m.
func (m Model) Summary() Summary {
	return Summary{ID: m.ID, Name: m.Name, Version: m.Version, Owner: m.OwnerID}
}

// Ref returns the minimal id/name reference of m.
func (m Model) Ref() Ref {
	return Ref{ID: m.ID, Name: m.Name}
}

// Ref identifies a model by id and display name.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Benchmark is a persisted snapshot.
type Benchmark struct {
	Snapshot

	ID           int64          `json:"id"`
	SubmissionID string         `json:"submission_id,omitempty"`
	Metadata     map[string]any `json:"model_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}
