package models

import (
	"encoding/json"
	"time"
)

type AssessmentStatus string

const (
	AssessmentStatusProcessing AssessmentStatus = "processing"
	AssessmentStatusCompleted  AssessmentStatus = "completed"
	AssessmentStatusFailed     AssessmentStatus = "failed"
)

// Valid reports whether s is one of the three lifecycle states.
func (s AssessmentStatus) Valid() bool {
	switch s {
	case AssessmentStatusProcessing, AssessmentStatusCompleted, AssessmentStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the external workflow has finished with the record.
func (s AssessmentStatus) Terminal() bool {
	return s == AssessmentStatusCompleted || s == AssessmentStatusFailed
}

type Damage struct {
	Type       string  `json:"type"`
	RepairCost float64 `json:"repairCost"`
}

// Assessment tracks one damage-evaluation request. AnalysisResult and
// CompletedAt are written by the external analysis workflow only.
type Assessment struct {
	ID             string           `json:"_id"`
	Title          string           `json:"title,omitempty"`
	BeforeImageURL string           `json:"beforeImageUrl"`
	AfterImageURL  string           `json:"afterImageUrl"`
	TotalCost      *float64         `json:"totalCost,omitempty"`
	Damages        []Damage         `json:"damages"`
	Status         AssessmentStatus `json:"status"`
	AnalysisResult json.RawMessage  `json:"analysisResult"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    *time.Time       `json:"completedAt"`
}
