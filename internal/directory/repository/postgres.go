package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/civictrack/civictrack-backend/internal/directory/domain"
	"github.com/civictrack/civictrack-backend/internal/report"
	"github.com/civictrack/civictrack-backend/pkg/database"
	"github.com/civictrack/civictrack-backend/pkg/errors"
)

// Schema creates the directory tables
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id                   TEXT PRIMARY KEY,
	description          TEXT NOT NULL,
	category             TEXT NOT NULL,
	confidence           INTEGER NOT NULL,
	priority             TEXT NOT NULL,
	authority            TEXT NOT NULL,
	latitude             DOUBLE PRECISION NOT NULL,
	longitude            DOUBLE PRECISION NOT NULL,
	address              TEXT NOT NULL,
	cell                 TEXT NOT NULL DEFAULT '',
	image_filename       TEXT NOT NULL DEFAULT '',
	image_content_type   TEXT NOT NULL DEFAULT '',
	image_size           INTEGER NOT NULL DEFAULT 0,
	status               TEXT NOT NULL CONSTRAINT reports_status_check
	                     CHECK (status IN ('Reported', 'In Progress', 'Resolved')),
	reported_by          TEXT NOT NULL,
	reporter_id          TEXT NOT NULL DEFAULT '',
	submitted_at         TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL,
	completed_at         TIMESTAMPTZ,
	estimated_completion TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS reports_submitted_at_idx ON reports (submitted_at DESC);

CREATE TABLE IF NOT EXISTS report_updates (
	id        BIGSERIAL PRIMARY KEY,
	report_id TEXT NOT NULL REFERENCES reports (id) ON DELETE CASCADE,
	date      TIMESTAMPTZ NOT NULL,
	status    TEXT NOT NULL,
	message   TEXT NOT NULL,
	author    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS report_updates_report_id_idx ON report_updates (report_id, date DESC);
`

const reportColumns = `id, description, category, confidence, priority, authority, latitude, longitude,
	address, cell, image_filename, image_content_type, image_size, status, reported_by, reporter_id,
	submitted_at, updated_at, completed_at, estimated_completion`

const (
	insertReport = `INSERT INTO reports (` + reportColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	insertUpdate = `INSERT INTO report_updates (report_id, date, status, message, author) VALUES ($1, $2, $3, $4, $5)`

	selectReport = `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	selectUpdates = `SELECT report_id, date, status, message, author FROM report_updates
	WHERE report_id = ANY($1) ORDER BY date DESC, id DESC`

	trackReports = `SELECT ` + reportColumns + ` FROM reports WHERE id ILIKE $1 ORDER BY submitted_at DESC, id DESC`

	updateStatus = `UPDATE reports SET status = $2, updated_at = $3, completed_at = COALESCE($4, completed_at)
	WHERE id = $1`

	selectIDs = `SELECT id FROM reports ORDER BY id`
)

type reportRow struct {
	ID                  string     `db:"id"`
	Description         string     `db:"description"`
	Category            string     `db:"category"`
	Confidence          int        `db:"confidence"`
	Priority            string     `db:"priority"`
	Authority           string     `db:"authority"`
	Latitude            float64    `db:"latitude"`
	Longitude           float64    `db:"longitude"`
	Address             string     `db:"address"`
	Cell                string     `db:"cell"`
	ImageFilename       string     `db:"image_filename"`
	ImageContentType    string     `db:"image_content_type"`
	ImageSize           int        `db:"image_size"`
	Status              string     `db:"status"`
	ReportedBy          string     `db:"reported_by"`
	ReporterID          string     `db:"reporter_id"`
	SubmittedAt         time.Time  `db:"submitted_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
	CompletedAt         *time.Time `db:"completed_at"`
	EstimatedCompletion *time.Time `db:"estimated_completion"`
}

type updateRow struct {
	ReportID string    `db:"report_id"`
	Date     time.Time `db:"date"`
	Status   string    `db:"status"`
	Message  string    `db:"message"`
	Author   string    `db:"author"`
}

func (row reportRow) record() *domain.Record {
	return &domain.Record{
		SubmittedReport: report.SubmittedReport{
			ID: row.ID,
			Image: report.Image{
				Filename:    row.ImageFilename,
				ContentType: row.ImageContentType,
				Size:        row.ImageSize,
				CapturedAt:  row.SubmittedAt,
			},
			Location:    report.Location{Lat: row.Latitude, Lng: row.Longitude, Address: row.Address},
			Description: row.Description,
			Classification: report.Classification{
				Category:   report.Category(row.Category),
				Confidence: row.Confidence,
				Priority:   report.Priority(row.Priority),
				Authority:  row.Authority,
			},
			SubmittedAt: row.SubmittedAt,
		},
		Status:              domain.Status(row.Status),
		ReportedBy:          row.ReportedBy,
		ReporterID:          row.ReporterID,
		Cell:                row.Cell,
		UpdatedAt:           row.UpdatedAt,
		CompletedAt:         row.CompletedAt,
		EstimatedCompletion: row.EstimatedCompletion,
		Updates:             []domain.Update{},
	}
}

// PostgresRepository stores reports in PostgreSQL
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a new postgres repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create stores a report and its timeline in one transaction
func (r *PostgresRepository) Create(ctx context.Context, rec *domain.Record) error {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, insertReport,
			rec.ID, rec.Description, string(rec.Classification.Category), rec.Classification.Confidence,
			string(rec.Classification.Priority), rec.Classification.Authority,
			rec.Location.Lat, rec.Location.Lng, rec.Location.Address, rec.Cell,
			rec.Image.Filename, rec.Image.ContentType, rec.Image.Size,
			string(rec.Status), rec.ReportedBy, rec.ReporterID,
			rec.SubmittedAt, rec.UpdatedAt, rec.CompletedAt, rec.EstimatedCompletion,
		); err != nil {
			return err
		}
		// stored oldest first so the insertion order breaks date ties
		for i := len(rec.Updates) - 1; i >= 0; i-- {
			u := rec.Updates[i]
			if _, err := tx.ExecContext(ctx, insertUpdate, rec.ID, u.Date, string(u.Status), u.Message, u.Author); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("insert report %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns one report with its timeline
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Record, error) {
	var row reportRow
	if err := r.db.GetContext(ctx, &row, selectReport, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundWithKey("report")
		}
		return nil, err
	}

	recs, err := r.withUpdates(ctx, []reportRow{row})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

// Track returns reports whose id contains query, ignoring case
func (r *PostgresRepository) Track(ctx context.Context, query string) ([]*domain.Record, error) {
	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, trackReports, "%"+escapeLike(query)+"%"); err != nil {
		return nil, err
	}
	return r.withUpdates(ctx, rows)
}

// List returns reports passing the filter, newest first
func (r *PostgresRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Record, error) {
	n := f.Normalized()
	args := []interface{}{}
	argIndex := 1

	query := `SELECT ` + reportColumns + ` FROM reports WHERE 1=1`

	if n.Search != "" {
		query += fmt.Sprintf(` AND (description ILIKE $%d OR address ILIKE $%d OR id ILIKE $%d)`, argIndex, argIndex, argIndex)
		args = append(args, "%"+escapeLike(n.Search)+"%")
		argIndex++
	}

	if n.Status != "" {
		query += fmt.Sprintf(` AND LOWER(status) = $%d`, argIndex)
		args = append(args, n.Status)
		argIndex++
	}

	if n.Priority != "" {
		query += fmt.Sprintf(` AND LOWER(priority) = $%d`, argIndex)
		args = append(args, n.Priority)
	}

	query += ` ORDER BY submitted_at DESC, id DESC`

	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return r.withUpdates(ctx, rows)
}

// AppendUpdate records a status change
func (r *PostgresRepository) AppendUpdate(ctx context.Context, id string, u domain.Update, completedAt *time.Time) (*domain.Record, error) {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, updateStatus, id, string(u.Status), u.Date, completedAt)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFoundWithKey("report")
		}
		_, err = tx.ExecContext(ctx, insertUpdate, id, u.Date, string(u.Status), u.Message, u.Author)
		return err
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return r.Get(ctx, id)
}

// IDs returns every stored report id
func (r *PostgresRepository) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, selectIDs); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepository) withUpdates(ctx context.Context, rows []reportRow) ([]*domain.Record, error) {
	recs := make([]*domain.Record, 0, len(rows))
	if len(rows) == 0 {
		return recs, nil
	}

	byID := make(map[string]*domain.Record, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		rec := row.record()
		recs = append(recs, rec)
		byID[rec.ID] = rec
		ids = append(ids, rec.ID)
	}

	var updates []updateRow
	if err := r.db.SelectContext(ctx, &updates, selectUpdates, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, u := range updates {
		if rec, ok := byID[u.ReportID]; ok {
			rec.Updates = append(rec.Updates, domain.Update{
				Date:    u.Date,
				Status:  domain.Status(u.Status),
				Message: u.Message,
				Author:  u.Author,
			})
		}
	}
	return recs, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
