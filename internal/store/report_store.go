package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/vbonduro/segnalazioni/internal/domain"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// createdAtLayout is fixed width so that lexical order on the TEXT column
// matches chronological order.
const createdAtLayout = "2006-01-02T15:04:05.000000Z"

var ErrDuplicateID = errors.New("report id already exists")

var reportColumns = []string{
	"id", "category", "description", "address", "lat", "lng", "photo_path",
	"reporter_first_name", "reporter_last_name", "status", "created_at",
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

type reportRow struct {
	ID                string          `db:"id"`
	Category          string          `db:"category"`
	Description       string          `db:"description"`
	Address           sql.NullString  `db:"address"`
	Lat               sql.NullFloat64 `db:"lat"`
	Lng               sql.NullFloat64 `db:"lng"`
	PhotoPath         sql.NullString  `db:"photo_path"`
	ReporterFirstName sql.NullString  `db:"reporter_first_name"`
	ReporterLastName  sql.NullString  `db:"reporter_last_name"`
	Status            string          `db:"status"`
	CreatedAt         string          `db:"created_at"`
}

func (row *reportRow) toDomain() (*domain.Report, error) {
	createdAt, err := time.Parse(createdAtLayout, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at of report %s: %w", row.ID, err)
	}
	r := &domain.Report{
		ID:                row.ID,
		Category:          domain.Category(row.Category),
		Description:       row.Description,
		Address:           row.Address.String,
		PhotoPath:         row.PhotoPath.String,
		ReporterFirstName: row.ReporterFirstName.String,
		ReporterLastName:  row.ReporterLastName.String,
		Status:            domain.Status(row.Status),
		CreatedAt:         createdAt,
	}
	if row.Lat.Valid && row.Lng.Valid {
		lat, lng := row.Lat.Float64, row.Lng.Float64
		r.Lat, r.Lng = &lat, &lng
	}
	return r, nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status   domain.Status
	Category domain.Category
	// Query is a case-sensitive substring matched against description or address.
	Query  string
	Limit  int
	Offset int
}

type ReportStore struct {
	db *sqlx.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: sqlx.NewDb(db, "sqlite")}
}

func (s *ReportStore) Insert(ctx context.Context, r *domain.Report) error {
	var lat, lng sql.NullFloat64
	if r.HasCoordinates() {
		lat = sql.NullFloat64{Float64: *r.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: *r.Lng, Valid: true}
	}

	query, args, err := psql.Insert("reports").
		Columns(reportColumns...).
		Values(
			r.ID,
			string(r.Category),
			r.Description,
			nullString(r.Address),
			lat,
			lng,
			nullString(r.PhotoPath),
			nullString(r.ReporterFirstName),
			nullString(r.ReporterLastName),
			string(r.Status),
			r.CreatedAt.UTC().Format(createdAtLayout),
		).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isPrimaryKeyViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// List returns reports newest first. Ties on created_at fall back to
// insertion order, newest first.
func (s *ReportStore) List(ctx context.Context, f Filter) ([]*domain.Report, error) {
	q := psql.Select(reportColumns...).From("reports")
	if f.Status != "" {
		q = q.Where(squirrel.Eq{"status": string(f.Status)})
	}
	if f.Category != "" {
		q = q.Where(squirrel.Eq{"category": string(f.Category)})
	}
	if f.Query != "" {
		q = q.Where(squirrel.Or{
			squirrel.Expr("instr(description, ?) > 0", f.Query),
			squirrel.Expr("instr(COALESCE(address, ''), ?) > 0", f.Query),
		})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(f.Offset, 0)

	query, args, err := q.OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	var rows []reportRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	reports := make([]*domain.Report, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (s *ReportStore) GetByID(ctx context.Context, id string) (*domain.Report, error) {
	query, args, err := psql.Select(reportColumns...).From("reports").
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get query: %w", err)
	}

	var row reportRow
	err = s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return row.toDomain()
}

// UpdateStatus sets the status of report id. It reports false when no such
// report exists.
func (s *ReportStore) UpdateStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	query, args, err := psql.Update("reports").
		Set("status", string(status)).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update report status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// CountByStatus returns the number of reports per status. Every known status
// is present in the result, with zero when it has no reports.
func (s *ReportStore) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	query, args, err := psql.Select("status", "COUNT(*) AS n").
		From("reports").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build count query: %w", err)
	}

	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}

	counts := make(map[domain.Status]int, len(domain.Statuses))
	for _, st := range domain.Statuses {
		counts[st] = 0
	}
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.N
	}
	return counts, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isPrimaryKeyViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
