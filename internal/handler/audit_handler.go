package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edupanel/edupanel-api/internal/models"
	"github.com/edupanel/edupanel-api/internal/service"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
	"github.com/edupanel/edupanel-api/pkg/response"
)

// AuditHandler exposes the audit trail endpoints.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

func auditFilter(c *gin.Context) (models.AuditFilter, error) {
	filter := models.AuditFilter{
		UserID: c.Query("user_id"),
		Action: c.Query("action"),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339")
		}
		filter.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339")
		}
		filter.To = &t
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return filter, nil
}

// List godoc
// @Summary List audit logs
// @Description List audit entries with filtering and pagination
// @Tags Audit
// @Produce json
// @Param user_id query string false "Filter by actor"
// @Param action query string false "Filter by action"
// @Param from query string false "Lower time bound (RFC3339)"
// @Param to query string false "Upper time bound (RFC3339)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter, err := auditFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	logs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, logs, pagination)
}

// Export godoc
// @Summary Export audit logs
// @Description Download the filtered audit trail as CSV or PDF
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param format query string true "Export format (csv or pdf)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	filter, err := auditFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportCSV)))

	payload, contentType, err := h.service.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := "audit-logs-" + time.Now().UTC().Format("20060102-150405") + "." + string(format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, payload)
}
