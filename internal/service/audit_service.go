package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
	"github.com/edupanel/edupanel-api/pkg/export"
)

// ExportFormat names the supported audit export encodings.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

type auditRepository interface {
	ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditService exposes the audit trail for administrators.
type AuditService struct {
	repo   auditRepository
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		repo:   repo,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// List returns audit entries with pagination metadata.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.repo.ListAuditLogs(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return logs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Export renders the filtered audit trail as CSV or PDF bytes together with
// the response content type.
func (s *AuditService) Export(ctx context.Context, filter models.AuditFilter, format ExportFormat) ([]byte, string, error) {
	logs, _, err := s.repo.ListAuditLogs(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit logs")
	}

	dataset := export.Dataset{
		Headers: []string{"Time", "Actor", "Action", "Resource", "Resource ID", "IP", "User Agent"},
	}
	for _, entry := range logs {
		actor := ""
		if entry.UserID != nil {
			actor = *entry.UserID
		}
		resourceID := ""
		if entry.ResourceID != nil {
			resourceID = *entry.ResourceID
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Time":        entry.CreatedAt.UTC().Format(time.RFC3339),
			"Actor":       actor,
			"Action":      entry.Action,
			"Resource":    entry.Resource,
			"Resource ID": resourceID,
			"IP":          entry.IPAddress,
			"User Agent":  entry.UserAgent,
		})
	}

	switch format {
	case ExportCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case ExportPDF:
		payload, err := s.pdf.Render(dataset, "Audit Trail")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	}

	return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
}
