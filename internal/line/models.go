package line

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusMerged   Status = "merged"
)

// Line is a transit line of the catalogue. New lines proposed by recorders
// enter as pending and are approved or merged by curators.
type Line struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Status       Status       `json:"status"`
	MergedIntoID *string      `json:"merged_into_id"`
	Path         [][2]float64 `json:"path"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type LineCreate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LineUpdate struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Status       Status       `json:"status"`
	MergedIntoID *string      `json:"merged_into_id"`
	Path         [][2]float64 `json:"path"`
}
