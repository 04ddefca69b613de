package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/report-revision-api/internal/models"
	appErrors "github.com/noah-isme/report-revision-api/pkg/errors"
	"github.com/noah-isme/report-revision-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type eventSource interface {
	Events(ctx context.Context, instanceID string) ([]models.WorkflowEvent, error)
}

// ExportResult is a rendered history listing.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders revision history and workflow logs as CSV or PDF
// listings for auditors. It does not render report documents.
type ExportService struct {
	versions *VersionStore
	events   eventSource
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(versions *VersionStore, events eventSource, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{versions: versions, events: events, csv: csv, pdf: pdf, logger: logger}
}

// ExportRevisions renders the full history of one section.
func (s *ExportService) ExportRevisions(ctx context.Context, instanceID, code, rawFormat string) (*ExportResult, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	seq, err := s.versions.ListRevisions(ctx, instanceID, code, models.RevisionRange{})
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"version", "author", "created_at", "changed_keys", "content"},
		Widths:  []float64{0.6, 1.2, 1.4, 1.6, 5},
	}
	for rev, err := range seq {
		if err != nil {
			return nil, err
		}
		content, err := json.Marshal(rev.Content)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode revision content")
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"version":      strconv.Itoa(rev.Version),
			"author":       rev.Author,
			"created_at":   rev.CreatedAt.UTC().Format(time.RFC3339),
			"changed_keys": strings.Join(rev.ChangedKeys, " "),
			"content":      string(content),
		})
	}

	title := fmt.Sprintf("Revision history: %s", SectionTitle(code))
	return s.render(format, dataset, title, fmt.Sprintf("%s-%s-revisions", instanceID, code))
}

// ExportEvents renders the workflow log of an instance.
func (s *ExportService) ExportEvents(ctx context.Context, instanceID, rawFormat string) (*ExportResult, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	events, err := s.events.Events(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"created_at", "action", "from", "to", "actor", "section", "comment"},
		Widths:  []float64{1.5, 1.4, 1.3, 1.3, 1.2, 1.2, 3},
	}
	for _, event := range events {
		row := map[string]string{
			"created_at": event.CreatedAt.UTC().Format(time.RFC3339),
			"action":     string(event.Action),
			"from":       string(event.FromState),
			"to":         string(event.ToState),
			"actor":      event.Actor,
		}
		if event.SectionCode != nil {
			row["section"] = *event.SectionCode
		}
		if event.Comment != nil {
			row["comment"] = *event.Comment
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	return s.render(format, dataset, "Workflow history", fmt.Sprintf("%s-workflow", instanceID))
}

func (s *ExportService) render(format export.Format, dataset export.Dataset, title, basename string) (*ExportResult, error) {
	var (
		payload []byte
		err     error
	)
	switch format {
	case export.FormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.logger.Error("render export failed", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("%s.%s", basename, format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}
