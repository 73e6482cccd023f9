package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cardamage/internal/media/sniffer"
	"cardamage/internal/models"
	"cardamage/internal/report"
	"cardamage/internal/service"
	"cardamage/internal/storage"
)

type paginationResponse struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

type listResponse struct {
	Assessments []models.Assessment `json:"assessments"`
	Pagination  paginationResponse  `json:"pagination"`
}

type statusResponse struct {
	AssessmentID   string                  `json:"assessmentId"`
	Status         models.AssessmentStatus `json:"status"`
	BeforeImageURL string                  `json:"beforeImageUrl"`
	AfterImageURL  string                  `json:"afterImageUrl"`
	AnalysisResult json.RawMessage         `json:"analysisResult"`
	CreatedAt      time.Time               `json:"createdAt"`
	CompletedAt    *time.Time              `json:"completedAt"`
}

type completeResponse struct {
	AssessmentID string          `json:"assessmentId"`
	Status       string          `json:"status"`
	BeforeBlob   *storage.Object `json:"beforeBlob,omitempty"`
	AfterBlob    *storage.Object `json:"afterBlob,omitempty"`
}

type reportResponse struct {
	AssessmentID      string                    `json:"assessmentId"`
	Status            models.AssessmentStatus   `json:"status"`
	Kind              report.Kind               `json:"kind"`
	Report            *report.DamageReport      `json:"report,omitempty"`
	ValidationFailure *report.ValidationFailure `json:"validationFailure,omitempty"`
	RawText           string                    `json:"rawText,omitempty"`
	Repaired          bool                      `json:"repaired"`
	Error             string                    `json:"error,omitempty"`
}

// UploadImage stores a single raw-body image.
func (h HandlerSet) UploadImage(c *gin.Context) {
	limit := h.cfg.Intake.MaxUploadBytes
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(c, service.ErrFileTooLarge, "Upload failed")
			return
		}
		h.writeError(c, fmt.Errorf("read body: %w", err), "Upload failed")
		return
	}

	obj, err := h.intake.UploadSingle(c.Request.Context(), service.SingleUpload{
		Filename:    c.Query("filename"),
		Kind:        c.Query("type"),
		ContentType: sniffer.BaseMIME(c.GetHeader("Content-Type")),
		Data:        body,
	})
	if err != nil {
		h.writeError(c, err, "Upload failed")
		return
	}

	c.JSON(http.StatusOK, obj)
}

// CompleteAssessment accepts the paired multipart upload from the intake form.
func (h HandlerSet) CompleteAssessment(c *gin.Context) {
	result, err := h.submit(c)
	if err != nil {
		h.writeError(c, err, "Assessment upload failed")
		return
	}

	resp := completeResponse{
		AssessmentID: result.Assessment.ID,
		Status:       "success",
	}
	if h.cfg.Intake.IncludeBlobs {
		resp.BeforeBlob = &result.Before
		resp.AfterBlob = &result.After
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) CreateAssessment(c *gin.Context) {
	var input service.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	created, err := h.assessments.Create(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, err, "Failed to create assessment")
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h HandlerSet) ListAssessments(c *gin.Context) {
	page, limit, err := pagingParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.assessments.List(c.Request.Context(), page, limit)
	if err != nil {
		h.writeError(c, err, "Failed to fetch assessments")
		return
	}

	c.JSON(http.StatusOK, listResponse{
		Assessments: result.Assessments,
		Pagination: paginationResponse{
			Total:      result.Total,
			Page:       result.Page,
			Limit:      result.Limit,
			TotalPages: result.TotalPages,
		},
	})
}

func (h HandlerSet) AssessmentStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Query("assessmentId"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Assessment ID is required"})
		return
	}

	a, err := h.assessments.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Failed to fetch assessment status")
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		AssessmentID:   a.ID,
		Status:         a.Status,
		BeforeImageURL: a.BeforeImageURL,
		AfterImageURL:  a.AfterImageURL,
		AnalysisResult: a.AnalysisResult,
		CreatedAt:      a.CreatedAt,
		CompletedAt:    a.CompletedAt,
	})
}

func (h HandlerSet) AssessmentReport(c *gin.Context) {
	id := strings.TrimSpace(c.Query("assessmentId"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Assessment ID is required"})
		return
	}

	view, err := h.assessments.Report(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Failed to build assessment report")
		return
	}

	res := view.Result
	resp := reportResponse{
		AssessmentID:      view.Assessment.ID,
		Status:            view.Assessment.Status,
		Kind:              res.Kind,
		Report:            res.Report,
		ValidationFailure: res.Failure,
		Repaired:          res.Repaired,
	}
	if !res.OK() {
		resp.RawText = res.RawText
		if res.Err != nil {
			resp.Error = res.Err.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}

// submit reads both multipart files and runs the intake pipeline.
func (h HandlerSet) submit(c *gin.Context) (service.IntakeResult, error) {
	limit := h.cfg.Intake.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*limit+1<<20)

	before, err := formImage(c, "beforeImage", limit)
	if err != nil {
		return service.IntakeResult{}, err
	}
	after, err := formImage(c, "afterImage", limit)
	if err != nil {
		return service.IntakeResult{}, err
	}

	return h.intake.Submit(c.Request.Context(), service.IntakeInput{
		Before: before,
		After:  after,
	})
}

// formImage returns nil without error when the field is absent.
func formImage(c *gin.Context, field string, limit int64) (*service.File, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, service.ErrFileTooLarge
		}
		return nil, fmt.Errorf("%w: malformed multipart form", service.ErrInvalidInput)
	}

	data, err := readPart(header, limit)
	if err != nil {
		return nil, err
	}
	return &service.File{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readPart(header *multipart.FileHeader, limit int64) ([]byte, error) {
	if header.Size > limit {
		return nil, service.ErrFileTooLarge
	}
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", header.Filename, err)
	}
	if int64(len(data)) > limit {
		return nil, service.ErrFileTooLarge
	}
	return data, nil
}

func pagingParams(c *gin.Context) (int, int, error) {
	page, err := positiveQuery(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err := positiveQuery(c, "limit", service.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if limit > service.MaxPageSize {
		return 0, 0, fmt.Errorf("limit must not exceed %d", service.MaxPageSize)
	}
	return page, limit, nil
}

func positiveQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return v, nil
}
