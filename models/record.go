package models

import "time"

// ArtifactStatus tracks the OCR pipeline progress for one uploaded image.
type ArtifactStatus string

const (
	StatusPending  ArtifactStatus = "pending"
	StatusComplete ArtifactStatus = "complete"
	StatusFailed   ArtifactStatus = "failed"
)

// ProfileRecord is a registered user profile. Records are written once at
// creation and never mutated; the ID is generated server-side.
type ProfileRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	City      string    `json:"city"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactRecord tracks the OCR lifecycle of the single image uploaded for a
// profile. Text is set only once Status reaches complete; Reason only when it
// reaches failed. The image itself lives on disk (ImagePath), not in the
// record, so the key-value entry stays small.
type ArtifactRecord struct {
	OwnerProfileID string         `json:"owner_profile_id"`
	Status         ArtifactStatus `json:"status"`
	Text           string         `json:"text,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	ImagePath      string         `json:"image_path,omitempty"`
	ImageBytes     int            `json:"image_bytes"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Profiles and artifacts share one key-value namespace; the prefixes keep the
// two record kinds from colliding on the same profile id.

func ProfileKey(id string) string { return "profile:" + id }

func ArtifactKey(profileID string) string { return "artifact:" + profileID }
