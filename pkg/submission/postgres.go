// Package submission provides sinks that accept completed form values.
// Both sinks report refusals as *directory.RejectionError so the runtime can
// keep the user's input and surface the problem.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/model"
	"github.com/goliatone/go-clinicform/pkg/schemaexport"
)

const uniqueViolation = "23505"

// Schema creates the submissions table.
const Schema = `CREATE TABLE IF NOT EXISTS form_submissions (
	id UUID PRIMARY KEY,
	form_id TEXT NOT NULL,
	clinic_id TEXT,
	payload JSONB NOT NULL,
	summary TEXT,
	submitted_at TIMESTAMPTZ NOT NULL,
	dedupe_key TEXT UNIQUE
)`

const insertSubmission = `INSERT INTO form_submissions (id, form_id, clinic_id, payload, summary, submitted_at, dedupe_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// DB is the subset of pgxpool.Pool the sink needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Summarizer renders the recap stored alongside forms that include their
// answers in the confirmation email.
type Summarizer interface {
	Render(form model.FormModel, values model.FormValues, submittedAt time.Time) (string, error)
}

// PostgresOption configures a PostgresSink.
type PostgresOption func(*PostgresSink)

// WithPostgresLogger attaches a logger.
func WithPostgresLogger(l *zap.Logger) PostgresOption {
	return func(s *PostgresSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSummarizer renders a summary for forms with IncludeInEmail set.
func WithSummarizer(sum Summarizer) PostgresOption {
	return func(s *PostgresSink) { s.summarizer = sum }
}

// WithClock overrides the submission timestamp source.
func WithClock(now func() time.Time) PostgresOption {
	return func(s *PostgresSink) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDedupeKey derives a key that must be unique across submissions, such
// as the booked slot. A repeated key is reported as a conflict.
func WithDedupeKey(fn func(form model.FormModel, values model.FormValues) string) PostgresOption {
	return func(s *PostgresSink) { s.dedupe = fn }
}

// PostgresSink stores accepted submissions in form_submissions.
type PostgresSink struct {
	db         DB
	logger     *zap.Logger
	summarizer Summarizer
	now        func() time.Time
	dedupe     func(form model.FormModel, values model.FormValues) string
}

// NewPostgresSink wraps db.
func NewPostgresSink(db DB, opts ...PostgresOption) *PostgresSink {
	s := &PostgresSink{db: db, logger: zap.NewNop(), now: time.Now, dedupe: ScheduleDedupeKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a pgx pool for url.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("submission: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("submission: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the submissions table when it is missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("submission: ensure schema: %w", err)
	}
	return nil
}

// Submit validates values against the form's value schema and inserts them.
func (s *PostgresSink) Submit(ctx context.Context, form model.FormModel, values model.FormValues) error {
	if err := schemaexport.New(form).Validate(values); err != nil {
		if verr, ok := schemaexport.AsValidation(err); ok {
			return &directory.RejectionError{Kind: directory.RejectionValidation, Message: "submitted values do not match the form", Fields: verr.Fields}
		}
		return fmt.Errorf("submission: validate: %w", err)
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("submission: encode payload: %w", err)
	}
	at := s.now().UTC()

	var summary any
	if form.IncludeInEmail && s.summarizer != nil {
		text, err := s.summarizer.Render(form, values, at)
		if err != nil {
			s.logger.Warn("summary render failed", zap.String("form", form.ID), zap.Error(err))
		} else {
			summary = text
		}
	}

	var dedupe any
	if s.dedupe != nil {
		if key := s.dedupe(form, values); key != "" {
			dedupe = key
		}
	}

	id := uuid.New()
	_, err = s.db.Exec(ctx, insertSubmission, id, form.ID, nullable(form.ClinicID), payload, summary, at, dedupe)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			s.logger.Info("duplicate submission", zap.String("form", form.ID), zap.String("constraint", pgErr.ConstraintName))
			return &directory.RejectionError{Kind: directory.RejectionConflict, Message: "this submission conflicts with an existing one", Fields: conflictFields(form)}
		}
		return fmt.Errorf("submission: insert: %w", err)
	}
	s.logger.Info("submission stored", zap.String("form", form.ID), zap.String("submission", id.String()))
	return nil
}

// ScheduleDedupeKey keys booking submissions by their chosen slot, so two
// patients cannot book the same practitioner at the same time.
func ScheduleDedupeKey(form model.FormModel, values model.FormValues) string {
	for _, field := range form.FieldsOfType(model.FieldTypeSchedule) {
		sv, ok := values.Schedule(field.ID)
		if ok && sv.Complete() {
			return fmt.Sprintf("slot:%s:%s:%sT%s", form.ClinicID, sv.Practitioner, sv.Date, sv.Time)
		}
	}
	return ""
}

func conflictFields(form model.FormModel) map[string]string {
	out := map[string]string{}
	for _, field := range form.FieldsOfType(model.FieldTypeSchedule) {
		out[field.ID] = "This time is no longer available"
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
