package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cardamage/internal/middleware"
	"cardamage/internal/models"
	"cardamage/internal/report"
	"cardamage/internal/service"
	"cardamage/internal/web"
)

func (h HandlerSet) IntakePage(c *gin.Context) {
	c.HTML(http.StatusOK, "intake.html", web.IntakePage{})
}

// SubmitPage handles the intake form and redirects to the new report.
func (h HandlerSet) SubmitPage(c *gin.Context) {
	result, err := h.submit(c)
	if err != nil {
		if service.IsValidation(err) {
			c.HTML(http.StatusBadRequest, "intake.html", web.IntakePage{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("assessment submission failed")
		c.HTML(http.StatusInternalServerError, "intake.html", web.IntakePage{Error: "Assessment upload failed. Please try again."})
		return
	}

	c.Redirect(http.StatusSeeOther, "/assessment/"+result.Assessment.ID)
}

func (h HandlerSet) ListPage(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	result, err := h.assessments.List(c.Request.Context(), page, service.DefaultPageSize)
	if err != nil {
		h.renderError(c, err)
		return
	}

	items := make([]web.ListItem, 0, len(result.Assessments))
	for _, a := range result.Assessments {
		item := web.ListItem{Assessment: a}
		if a.Status == models.AssessmentStatusCompleted {
			item.CostRange = report.Extract(a.AnalysisResult).Report.CostRange()
		}
		items = append(items, item)
	}

	c.HTML(http.StatusOK, "list.html", web.ListPage{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		TotalPages: result.TotalPages,
	})
}

func (h HandlerSet) ReportPage(c *gin.Context) {
	view, err := h.assessments.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.HTML(http.StatusOK, "report.html", web.ReportPage{
		Assessment:     view.Assessment,
		Result:         view.Result,
		Processing:     view.Assessment.Status == models.AssessmentStatusProcessing,
		RefreshSeconds: web.RefreshSeconds,
	})
}

func (h HandlerSet) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.HTML(http.StatusNotFound, "error.html", web.ErrorPage{Status: http.StatusNotFound, Message: "Assessment not found"})
	case service.IsValidation(err):
		c.HTML(http.StatusBadRequest, "error.html", web.ErrorPage{Status: http.StatusBadRequest, Message: err.Error()})
	default:
		h.log.Error().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("render page failed")
		c.HTML(http.StatusInternalServerError, "error.html", web.ErrorPage{Status: http.StatusInternalServerError, Message: "Failed to load assessment"})
	}
}
