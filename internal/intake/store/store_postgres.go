package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"casegate/internal/intake/models"
	"casegate/pkg/platform/sentinel"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var tracer = otel.Tracer("casegate/internal/intake/store")

const recordColumns = `id, first_name, last_name, date_of_birth, country_of_origin, crisis_id,
	food, housing, equipment, water, sanitation, building, amount::text, fingerprint, created_at`

// Postgres persists crises and records in PostgreSQL. Fingerprint uniqueness
// is enforced by the records_fingerprint_key constraint.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindByFingerprint(ctx context.Context, fingerprint string) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "store.FindByFingerprint")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE fingerprint = $1`, fingerprint)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		recordSpanError(span, err)
		return nil, fmt.Errorf("find record by fingerprint: %w", err)
	}
	return record, nil
}

func (s *Postgres) FindCrisis(ctx context.Context, id int64) (*models.Crisis, error) {
	ctx, span := tracer.Start(ctx, "store.FindCrisis")
	defer span.End()
	span.SetAttributes(attribute.Int64("crisis.id", id))

	var crisis models.Crisis
	err := s.db.QueryRowContext(ctx, `SELECT id, title, code FROM crises WHERE id = $1`, id).
		Scan(&crisis.ID, &crisis.Title, &crisis.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		recordSpanError(span, err)
		return nil, fmt.Errorf("find crisis: %w", err)
	}
	crisis.Code = strings.TrimSpace(crisis.Code)
	return &crisis, nil
}

// Create inserts the record in a single statement and fills in the generated
// ID and creation time. A duplicate fingerprint maps to sentinel.ErrConflict
// and an unknown crisis to sentinel.ErrNotFound.
func (s *Postgres) Create(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	ctx, span := tracer.Start(ctx, "store.Create")
	defer span.End()

	query := `
		INSERT INTO records (
			first_name, last_name, date_of_birth, country_of_origin, crisis_id,
			food, housing, equipment, water, sanitation, building, amount, fingerprint
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::numeric, $13)
		RETURNING id, created_at
	`
	c := record.Categories
	err := s.db.QueryRowContext(ctx, query,
		record.GivenName, record.FamilyName, record.DateOfBirth, record.OriginCode, record.CrisisID,
		c.Food, c.Housing, c.Equipment, c.Water, c.Sanitation, c.Building,
		record.Amount.String(), record.Fingerprint,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pgUniqueViolation:
				return fmt.Errorf("record %s: %w", record.Fingerprint, sentinel.ErrConflict)
			case pgForeignKeyViolation:
				return fmt.Errorf("crisis %d: %w", record.CrisisID, sentinel.ErrNotFound)
			}
		}
		recordSpanError(span, err)
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// ListRecords returns every record in ascending ID order.
func (s *Postgres) ListRecords(ctx context.Context) ([]models.Record, error) {
	ctx, span := tracer.Start(ctx, "store.ListRecords")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY id`)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	span.SetAttributes(attribute.Int("records.count", len(records)))
	return records, nil
}

func (s *Postgres) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *Postgres) ListCrises(ctx context.Context) ([]models.Crisis, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, code FROM crises ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list crises: %w", err)
	}
	defer rows.Close()

	var crises []models.Crisis
	for rows.Next() {
		var c models.Crisis
		if err := rows.Scan(&c.ID, &c.Title, &c.Code); err != nil {
			return nil, fmt.Errorf("scan crisis: %w", err)
		}
		c.Code = strings.TrimSpace(c.Code)
		crises = append(crises, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crises: %w", err)
	}
	return crises, nil
}

func (s *Postgres) CreateCrisis(ctx context.Context, crisis *models.Crisis) error {
	if crisis == nil {
		return fmt.Errorf("crisis is required")
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO crises (title, code) VALUES ($1, $2) RETURNING id`,
		crisis.Title, crisis.Code,
	).Scan(&crisis.ID)
	if err != nil {
		return fmt.Errorf("create crisis: %w", err)
	}
	return nil
}

// Health pings the database.
func (s *Postgres) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		record models.Record
		amount string
	)
	c := &record.Categories
	err := row.Scan(
		&record.ID, &record.GivenName, &record.FamilyName, &record.DateOfBirth, &record.OriginCode, &record.CrisisID,
		&c.Food, &c.Housing, &c.Equipment, &c.Water, &c.Sanitation, &c.Building,
		&amount, &record.Fingerprint, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.OriginCode = strings.TrimSpace(record.OriginCode)
	record.Amount, err = models.ParseAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount %q: %w", amount, err)
	}
	return &record, nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
