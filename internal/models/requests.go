package models

import "time"

// Auth surface payloads. The shapes mirror the GoTrue-compatible provider the
// server delegates identity to.

type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type AuthUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

type AuthSession struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	User         AuthUser `json:"user"`
}

// Incident surface payloads.

type ResolveIncidentRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

type InvestigateIncidentRequest struct {
	Notes string `json:"notes"`
}

// AttackSimulationRequest selects a scripted chain by name or alias. The
// legacy "type" key is accepted as a fallback for "attack_type".
type AttackSimulationRequest struct {
	AttackType string `json:"attack_type"`
	LegacyType string `json:"type"`
	Target     string `json:"target"`
}

// Chain resolves the requested chain name across both accepted keys.
func (r AttackSimulationRequest) Chain() string {
	if r.AttackType != "" {
		return r.AttackType
	}
	return r.LegacyType
}

// EventFilter narrows store gateway listing queries. Zero values mean
// unfiltered.
type EventFilter struct {
	Type     string
	SourceIP string
	Severity Severity
	Since    time.Time
	Until    time.Time
	Flagged  *bool
	Limit    int
	Offset   int
}

// IncidentFilter narrows incident listing.
type IncidentFilter struct {
	Status     string
	ThreatType ThreatType
	Severity   Severity
	Limit      int
	Offset     int
}

// ResponseActionRequest drives a single manual containment action.
type ResponseActionRequest struct {
	Target string `json:"target" binding:"required"`
	Reason string `json:"reason"`
}
