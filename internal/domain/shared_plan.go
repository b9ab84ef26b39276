// internal/domain/shared_plan.go
package domain

import (
	"encoding/json"
	"time"
)

// SharedPlan is the public, externally addressable copy of a trainer's workout plan.
// The plan payload is opaque; the share layer never interprets its structure.
type SharedPlan struct {
	ShareID        string          `json:"shareId"`            // 6 chars, [A-Z0-9], never mutated
	PlanData       json.RawMessage `json:"planData"`           // Whatever the trainer's client sent
	OwnerRef       *string         `json:"ownerRef,omitempty"` // Optional; only used to gate update/delete
	IsActive       bool            `json:"isActive"`
	AccessCount    int64           `json:"accessCount"`
	LastAccessedAt *time.Time      `json:"lastAccessedAt,omitempty"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty"` // nil means never expires
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Expired reports whether the share's expiry has been reached at now.
func (p *SharedPlan) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Resolvable reports whether the share may hand its payload to a caller at now.
func (p *SharedPlan) Resolvable(now time.Time) bool {
	return p.IsActive && !p.Expired(now)
}

// HasOwner reports whether an owner reference was recorded at creation.
func (p *SharedPlan) HasOwner() bool {
	return p.OwnerRef != nil && *p.OwnerRef != ""
}

// OwnedBy reports whether ownerRef matches the recorded owner.
// A share without an owner is owned by nobody.
func (p *SharedPlan) OwnedBy(ownerRef string) bool {
	return p.HasOwner() && *p.OwnerRef == ownerRef
}

// SharePatch carries the mutable fields of a SharedPlan. Nil/empty fields are left untouched.
type SharePatch struct {
	PlanData json.RawMessage `json:"planData,omitempty"`
	IsActive *bool           `json:"isActive,omitempty"`
}

// HasPlanData reports whether the patch replaces the payload. A JSON null counts as absent.
func (p SharePatch) HasPlanData() bool {
	return len(p.PlanData) > 0 && string(p.PlanData) != "null"
}

// Empty reports whether the patch would change nothing.
func (p SharePatch) Empty() bool {
	return !p.HasPlanData() && p.IsActive == nil
}
