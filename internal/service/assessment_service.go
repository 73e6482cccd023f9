package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"cardamage/internal/ids"
	"cardamage/internal/models"
	"cardamage/internal/report"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type DamageInput struct {
	Type       string   `json:"type"`
	RepairCost *float64 `json:"repairCost"`
}

// CreateInput is the simple-form payload. ID and CreatedAt are optional.
type CreateInput struct {
	ID             string        `json:"_id"`
	Title          string        `json:"title"`
	BeforeImageURL string        `json:"beforeImageUrl"`
	AfterImageURL  string        `json:"afterImageUrl"`
	TotalCost      *float64      `json:"totalCost"`
	Damages        []DamageInput `json:"damages"`
	CreatedAt      *time.Time    `json:"createdAt"`
}

type Page struct {
	Assessments []models.Assessment
	Total       int64
	Page        int
	Limit       int
	TotalPages  int
}

type ReportView struct {
	Assessment models.Assessment
	Result     report.Result
}

type AssessmentService struct {
	assessments AssessmentStore
}

func NewAssessmentService(assessments AssessmentStore) *AssessmentService {
	return &AssessmentService{assessments: assessments}
}

func (s *AssessmentService) Get(ctx context.Context, id string) (models.Assessment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Assessment{}, fmt.Errorf("%w: assessment id is required", ErrInvalidInput)
	}
	a, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		return models.Assessment{}, mapStoreError(err)
	}
	return a, nil
}

// List returns one page of assessments, newest first. Pages past the end are
// empty rather than an error.
func (s *AssessmentService) List(ctx context.Context, page, pageSize int) (Page, error) {
	if page < 1 {
		return Page{}, fmt.Errorf("%w: page must be a positive integer", ErrInvalidInput)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return Page{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxPageSize)
	}

	total, err := s.assessments.Count(ctx)
	if err != nil {
		return Page{}, mapStoreError(err)
	}

	result := Page{
		Assessments: []models.Assessment{},
		Total:       total,
		Page:        page,
		Limit:       pageSize,
		TotalPages:  int(math.Ceil(float64(total) / float64(pageSize))),
	}
	// Checked before computing the offset so huge pages cannot overflow it.
	if page > result.TotalPages {
		return result, nil
	}

	items, err := s.assessments.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return Page{}, mapStoreError(err)
	}
	result.Assessments = items
	return result, nil
}

// Create records a simple-form assessment. A caller-supplied id that already
// exists yields ErrDuplicateID and leaves the stored record as it was.
func (s *AssessmentService) Create(ctx context.Context, input CreateInput) (models.Assessment, error) {
	if err := input.validate(); err != nil {
		return models.Assessment{}, err
	}

	damages := make([]models.Damage, 0, len(input.Damages))
	for _, d := range input.Damages {
		damages = append(damages, models.Damage{Type: strings.TrimSpace(d.Type), RepairCost: *d.RepairCost})
	}

	a := models.Assessment{
		ID:             strings.TrimSpace(input.ID),
		Title:          strings.TrimSpace(input.Title),
		BeforeImageURL: strings.TrimSpace(input.BeforeImageURL),
		AfterImageURL:  strings.TrimSpace(input.AfterImageURL),
		TotalCost:      input.TotalCost,
		Damages:        damages,
		Status:         models.AssessmentStatusProcessing,
		CreatedAt:      time.Now().UTC(),
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	if input.CreatedAt != nil && !input.CreatedAt.IsZero() {
		a.CreatedAt = input.CreatedAt.UTC()
	}

	if err := s.assessments.Create(ctx, a); err != nil {
		return models.Assessment{}, mapStoreError(err)
	}
	return a, nil
}

// Report loads an assessment and derives its damage report. Extraction
// outcomes are part of the view, never an error.
func (s *AssessmentService) Report(ctx context.Context, id string) (ReportView, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return ReportView{}, err
	}
	return ReportView{
		Assessment: a,
		Result:     report.Extract(a.AnalysisResult),
	}, nil
}

func (in CreateInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(in.BeforeImageURL) == "" {
		missing = append(missing, "beforeImageUrl")
	}
	if strings.TrimSpace(in.AfterImageURL) == "" {
		missing = append(missing, "afterImageUrl")
	}
	if in.TotalCost == nil {
		missing = append(missing, "totalCost")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if *in.TotalCost < 0 || math.IsNaN(*in.TotalCost) {
		return fmt.Errorf("%w: totalCost must be non-negative", ErrInvalidInput)
	}
	for i, d := range in.Damages {
		if strings.TrimSpace(d.Type) == "" {
			return fmt.Errorf("%w: damages[%d].type is required", ErrInvalidInput, i)
		}
		if d.RepairCost == nil {
			return fmt.Errorf("%w: damages[%d].repairCost is required", ErrInvalidInput, i)
		}
		if *d.RepairCost < 0 {
			return fmt.Errorf("%w: damages[%d].repairCost must be non-negative", ErrInvalidInput, i)
		}
	}
	return nil
}
