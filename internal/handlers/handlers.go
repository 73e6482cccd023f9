package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cardamage/internal/config"
	"cardamage/internal/middleware"
	"cardamage/internal/service"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies groups what the handlers need. Cache may be nil when Redis is
// not configured.
type Dependencies struct {
	Intake      *service.IntakeService
	Assessments *service.AssessmentService
	Database    Pinger
	Cache       Pinger
	Storage     Pinger
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	intake      *service.IntakeService
	assessments *service.AssessmentService
	db          Pinger
	cache       Pinger
	store       Pinger
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Dependencies) HandlerSet {
	return HandlerSet{
		log:         log,
		cfg:         cfg,
		intake:      deps.Intake,
		assessments: deps.Assessments,
		db:          deps.Database,
		cache:       deps.Cache,
		store:       deps.Storage,
	}
}

// Register mounts the JSON API.
func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	assessments := router.Group("/assessments")
	{
		assessments.POST("", h.CreateAssessment)
		assessments.GET("", h.ListAssessments)
		assessments.GET("/list", h.ListAssessments)
		assessments.GET("/status", h.AssessmentStatus)
		assessments.GET("/report", h.AssessmentReport)
		assessments.POST("/upload", h.UploadImage)
		assessments.POST("/complete", h.CompleteAssessment)
	}
}

// RegisterPages mounts the server-rendered pages.
func (h HandlerSet) RegisterPages(router *gin.RouterGroup) {
	router.GET("/", h.IntakePage)
	router.POST("/assessments", h.SubmitPage)
	router.GET("/assessments", h.ListPage)
	router.GET("/assessment/:id", h.ReportPage)
}

// writeError maps service errors onto HTTP statuses. Upstream failures are
// logged and answered with fallback so causes do not leak.
func (h HandlerSet) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Assessment not found"})
	case errors.Is(err, service.ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{"error": "Assessment with this ID already exists"})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", middleware.GetRequestID(c)).Msg(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
