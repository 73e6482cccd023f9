package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardamage/internal/models"
)

var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrDuplicateID        = errors.New("assessment id already exists")
)

const uniqueViolation = "23505"

type AssessmentRepository struct {
	pool *pgxpool.Pool
}

func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

const assessmentColumns = `
	id, title, before_image_url, after_image_url, total_cost, damages,
	status, analysis_result, created_at, completed_at
`

// Create inserts a new record. An existing id yields ErrDuplicateID and
// leaves the stored row untouched.
func (r *AssessmentRepository) Create(ctx context.Context, a models.Assessment) error {
	const query = `
		INSERT INTO assessments (
			id, title, before_image_url, after_image_url, total_cost, damages,
			status, analysis_result, created_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	damages := a.Damages
	if damages == nil {
		damages = []models.Damage{}
	}
	damagesJSON, err := json.Marshal(damages)
	if err != nil {
		return fmt.Errorf("encode damages: %w", err)
	}

	var analysis []byte
	if len(a.AnalysisResult) > 0 {
		analysis = a.AnalysisResult
	}

	_, err = r.pool.Exec(ctx, query,
		a.ID,
		a.Title,
		a.BeforeImageURL,
		a.AfterImageURL,
		a.TotalCost,
		damagesJSON,
		a.Status,
		analysis,
		a.CreatedAt,
		a.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

func (r *AssessmentRepository) GetByID(ctx context.Context, id string) (models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`

	a, err := scanAssessment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	return a, nil
}

// List returns one page ordered newest first. id breaks ties so that pages
// stay disjoint when several rows share a timestamp.
func (r *AssessmentRepository) List(ctx context.Context, limit, offset int) ([]models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + `
		FROM assessments
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	return r.query(ctx, query, limit, offset)
}

func (r *AssessmentRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM assessments`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListStale returns assessments still processing that were created before
// the cutoff, oldest first.
func (r *AssessmentRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + `
		FROM assessments
		WHERE status = 'processing' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	return r.query(ctx, query, before, limit)
}

func (r *AssessmentRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *AssessmentRepository) query(ctx context.Context, query string, args ...any) ([]models.Assessment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assessments := make([]models.Assessment, 0)
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}
	return assessments, rows.Err()
}

func scanAssessment(row pgx.Row) (models.Assessment, error) {
	var (
		a           models.Assessment
		status      string
		damagesJSON []byte
		analysis    []byte
	)
	if err := row.Scan(
		&a.ID,
		&a.Title,
		&a.BeforeImageURL,
		&a.AfterImageURL,
		&a.TotalCost,
		&damagesJSON,
		&status,
		&analysis,
		&a.CreatedAt,
		&a.CompletedAt,
	); err != nil {
		return models.Assessment{}, err
	}

	a.Status = models.AssessmentStatus(status)
	a.Damages = []models.Damage{}
	if len(damagesJSON) > 0 {
		if err := json.Unmarshal(damagesJSON, &a.Damages); err != nil {
			return models.Assessment{}, fmt.Errorf("decode damages for %s: %w", a.ID, err)
		}
	}
	if len(analysis) > 0 {
		a.AnalysisResult = json.RawMessage(analysis)
	}
	return a, nil
}
