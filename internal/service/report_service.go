package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/segnalazioni/internal/dispatch"
	"github.com/vbonduro/segnalazioni/internal/domain"
	"github.com/vbonduro/segnalazioni/internal/metrics"
	"github.com/vbonduro/segnalazioni/internal/photostore"
	"github.com/vbonduro/segnalazioni/internal/rules"
	"github.com/vbonduro/segnalazioni/internal/store"
	"github.com/vbonduro/segnalazioni/internal/upload"
)

var (
	ErrNotFound             = errors.New("report not found")
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
)

// reportRepository is the subset of store.ReportStore that ReportService requires.
type reportRepository interface {
	Insert(ctx context.Context, r *domain.Report) error
	List(ctx context.Context, f store.Filter) ([]*domain.Report, error)
	GetByID(ctx context.Context, id string) (*domain.Report, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) (bool, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

type ReportService struct {
	reports        reportRepository
	acceptor       upload.Acceptor
	photos         photostore.PhotoStore
	formatter      *dispatch.Formatter
	metrics        *metrics.Metrics
	logger         *slog.Logger
	maxUploadBytes int64

	now   func() time.Time
	newID func() string
}

func NewReportService(
	reports reportRepository,
	acceptor upload.Acceptor,
	photos photostore.PhotoStore,
	formatter *dispatch.Formatter,
	m *metrics.Metrics,
	logger *slog.Logger,
	maxUploadBytes int64,
) *ReportService {
	if formatter == nil {
		formatter = &dispatch.Formatter{}
	}
	return &ReportService{
		reports:        reports,
		acceptor:       acceptor,
		photos:         photos,
		formatter:      formatter,
		metrics:        m,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Create validates the draft, stores the optional photo and persists a new
// report with status nuova. A rejected draft has no side effects. If the
// insert fails after the photo was stored, the photo is removed again.
func (s *ReportService) Create(ctx context.Context, draft rules.Draft, photo io.Reader) (*domain.Report, error) {
	in, err := rules.Normalize(draft)
	if err != nil {
		return nil, err
	}

	lat, lng := in.Lat, in.Lng
	report := &domain.Report{
		ID:                s.newID(),
		Category:          in.Category,
		Description:       in.Description,
		Address:           in.Address,
		Lat:               &lat,
		Lng:               &lng,
		ReporterFirstName: in.ReporterFirstName,
		ReporterLastName:  in.ReporterLastName,
		Status:            domain.StatusNew,
	}

	if photo != nil {
		storedPath, err := s.acceptor.Accept(ctx, report.ID, photo, upload.Constraints{MaxBytes: s.maxUploadBytes})
		if err != nil {
			return nil, fmt.Errorf("failed to accept photo: %w", err)
		}
		report.PhotoPath = storedPath
		s.logger.Debug("photo stored", "report_id", report.ID, "photo_path", storedPath)
	}

	report.CreatedAt = s.now().UTC()
	if err := s.reports.Insert(ctx, report); err != nil {
		s.discardPhoto(ctx, report)
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	s.metrics.ReportCreated(string(report.Category))
	s.logger.Info("report created",
		"report_id", report.ID,
		"category", report.Category,
		"has_photo", report.PhotoPath != "")
	return report, nil
}

func (s *ReportService) discardPhoto(ctx context.Context, r *domain.Report) {
	if r.PhotoPath == "" {
		return
	}
	key := strings.TrimPrefix(r.PhotoPath, upload.PublicPrefix)
	if err := s.photos.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Error("failed to remove photo of unsaved report", "report_id", r.ID, "storage_key", key, "error", err)
	}
}

// ListQuery carries the operator list filters exactly as received. Unknown
// status or category values match nothing, and Query is matched verbatim,
// whitespace included.
type ListQuery struct {
	Status   string
	Category string
	Query    string
	Limit    int
	Offset   int
}

func (s *ReportService) List(ctx context.Context, q ListQuery) ([]*domain.Report, error) {
	reports, err := s.reports.List(ctx, store.Filter{
		Status:   domain.Status(q.Status),
		Category: domain.Category(q.Category),
		Query:    q.Query,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

func (s *ReportService) Get(ctx context.Context, id string) (*domain.Report, error) {
	r, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// UpdateStatus moves report id to the status named by raw.
func (s *ReportService) UpdateStatus(ctx context.Context, id, raw string) error {
	next, err := rules.ParseStatus(raw)
	if err != nil {
		return err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rules.CanTransition(current.Status, next) {
		return ErrTransitionNotAllowed
	}

	ok, err := s.reports.UpdateStatus(ctx, id, next)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	s.metrics.StatusUpdated(string(next))
	s.logger.Info("report status updated", "report_id", id, "from", current.Status, "to", next)
	return nil
}

// Stats holds the per-status totals shown in the operator console.
type Stats struct {
	ByStatus map[domain.Status]int
	Total    int
}

func (s *ReportService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.reports.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	stats := &Stats{ByStatus: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// Dispatch is the pre-formatted text for a report and the WhatsApp link
// that carries it.
type Dispatch struct {
	Message     string
	WhatsAppURL string
}

// Dispatch builds the forwarding message for r. baseURL prefixes the photo
// path; phone is the optional destination number.
func (s *ReportService) Dispatch(r *domain.Report, baseURL, phone string) Dispatch {
	msg := s.formatter.Message(r, PhotoURL(baseURL, r.PhotoPath))
	return Dispatch{
		Message:     msg,
		WhatsAppURL: dispatch.WhatsAppURL(phone, msg),
	}
}

// PhotoURL returns the absolute URL of a stored photo, or "" when there is
// no photo.
func PhotoURL(baseURL, photoPath string) string {
	if photoPath == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + photoPath
}
