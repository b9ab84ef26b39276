package filestore

import (
	"alcyxob/fitness-share/internal/domain"
	"encoding/json"
	"time"
)

const (
	documentVersion = "1.0"
	indexVersion    = "1.0"
	indexKey        = "index.json"
	documentSuffix  = ".json"
)

// shareDocument is the on-disk layout of {SHAREID}.json.
type shareDocument struct {
	ID         string           `json:"id"`
	OriginalID string           `json:"originalId,omitempty"` // The plan's own id, when the payload carries one
	Plan       json.RawMessage  `json:"plan"`
	Timestamp  time.Time        `json:"timestamp"`
	Version    string           `json:"version"`
	Metadata   documentMetadata `json:"metadata"`
}

type documentMetadata struct {
	CreatedAt      time.Time  `json:"createdAt"`
	LastModified   time.Time  `json:"lastModified"`
	FileSize       int        `json:"fileSize"` // Size of the plan payload in bytes
	OwnerRef       *string    `json:"ownerRef,omitempty"`
	IsActive       bool       `json:"isActive"`
	AccessCount    int64      `json:"accessCount"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// indexFile is the layout of index.json. It is a derived view of the share
// documents and may lag behind them.
type indexFile struct {
	Workouts      []IndexEntry `json:"workouts"`
	LastUpdated   time.Time    `json:"lastUpdated"`
	TotalWorkouts int          `json:"totalWorkouts"`
	Version       string       `json:"version"`
}

// IndexEntry is the denormalized summary of one share kept in index.json.
type IndexEntry struct {
	ID           string     `json:"id"`
	OriginalID   string     `json:"originalId,omitempty"`
	Name         string     `json:"name,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	LastModified time.Time  `json:"lastModified"`
	FileSize     int        `json:"fileSize"`
	IsActive     bool       `json:"isActive"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// planLabels pulls the optional top-level "id" and "name" out of a plan payload
// for the index summary. Payloads of any other shape just get no labels.
func planLabels(plan json.RawMessage) (id, name string) {
	var labels struct {
		ID   json.RawMessage `json:"id"`
		Name string          `json:"name"`
	}
	if err := json.Unmarshal(plan, &labels); err != nil {
		return "", ""
	}
	if len(labels.ID) > 0 {
		var s string
		if err := json.Unmarshal(labels.ID, &s); err == nil {
			id = s
		} else if string(labels.ID) != "null" {
			id = string(labels.ID) // numeric ids
		}
	}
	return id, labels.Name
}

func newDocument(plan *domain.SharedPlan) shareDocument {
	originalID, _ := planLabels(plan.PlanData)
	return shareDocument{
		ID:         plan.ShareID,
		OriginalID: originalID,
		Plan:       plan.PlanData,
		Timestamp:  plan.CreatedAt,
		Version:    documentVersion,
		Metadata: documentMetadata{
			CreatedAt:      plan.CreatedAt,
			LastModified:   plan.UpdatedAt,
			FileSize:       len(plan.PlanData),
			OwnerRef:       plan.OwnerRef,
			IsActive:       plan.IsActive,
			AccessCount:    plan.AccessCount,
			LastAccessedAt: plan.LastAccessedAt,
			ExpiresAt:      plan.ExpiresAt,
		},
	}
}

func (d *shareDocument) toDomain() *domain.SharedPlan {
	return &domain.SharedPlan{
		ShareID:        d.ID,
		PlanData:       d.Plan,
		OwnerRef:       d.Metadata.OwnerRef,
		IsActive:       d.Metadata.IsActive,
		AccessCount:    d.Metadata.AccessCount,
		LastAccessedAt: d.Metadata.LastAccessedAt,
		ExpiresAt:      d.Metadata.ExpiresAt,
		CreatedAt:      d.Metadata.CreatedAt,
		UpdatedAt:      d.Metadata.LastModified,
	}
}

func (d *shareDocument) summary() IndexEntry {
	_, name := planLabels(d.Plan)
	return IndexEntry{
		ID:           d.ID,
		OriginalID:   d.OriginalID,
		Name:         name,
		Timestamp:    d.Timestamp,
		LastModified: d.Metadata.LastModified,
		FileSize:     d.Metadata.FileSize,
		IsActive:     d.Metadata.IsActive,
		ExpiresAt:    d.Metadata.ExpiresAt,
	}
}
