package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the ledger in a table keyed by lead id.
type PostgresStore struct {
	db    rowQuerier
	table string
}

// NewPostgresStore wraps a pgx pool. table defaults to lead_ledger.
func NewPostgresStore(pool *pgxpool.Pool, table string) *PostgresStore {
	if pool == nil {
		panic("ledger: pgx pool required")
	}
	return newPostgresStoreWithExec(pool, table)
}

func newPostgresStoreWithExec(db rowQuerier, table string) *PostgresStore {
	if strings.TrimSpace(table) == "" {
		table = "lead_ledger"
	}
	return &PostgresStore{db: db, table: pgx.Identifier{table}.Sanitize()}
}

const ledgerColumns = `submitted_at, lead_id, address, street_address, city, state, postal_code,
		phone, place_id, first_name, last_name, email, is_property_listed,
		property_condition, timeframe, price, reason_for_selling, submission_type,
		crm_contact_id, ip, last_updated`

func (s *PostgresStore) Find(ctx context.Context, leadID string) (RowRef, Row, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE lead_id = $1`, ledgerColumns, s.table)
	var (
		r                    Row
		submitted, updatedAt *time.Time
	)
	err := s.db.QueryRow(ctx, query, leadID).Scan(
		&submitted, &r.LeadID, &r.Address, &r.StreetAddress, &r.City, &r.State, &r.PostalCode,
		&r.Phone, &r.PlaceID, &r.FirstName, &r.LastName, &r.Email, &r.IsPropertyListed,
		&r.PropertyCondition, &r.Timeframe, &r.Price, &r.ReasonForSelling, &r.SubmissionType,
		&r.CRMContactID, &r.IP, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", Row{}, ErrNotFound
	}
	if err != nil {
		return "", Row{}, &StoreError{Op: "find", Err: err}
	}
	if submitted != nil {
		r.Timestamp = formatTime(*submitted)
	}
	if updatedAt != nil {
		r.LastUpdated = formatTime(*updatedAt)
	}
	return RowRef(r.LeadID), r, nil
}

// Append inserts the row. A concurrent insert for the same lead id turns into
// an update, so two racing first submissions still leave one row.
func (s *PostgresStore) Append(ctx context.Context, row Row) (RowRef, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (lead_id) DO UPDATE SET
			address = EXCLUDED.address,
			street_address = EXCLUDED.street_address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code,
			phone = EXCLUDED.phone,
			place_id = EXCLUDED.place_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			is_property_listed = EXCLUDED.is_property_listed,
			property_condition = EXCLUDED.property_condition,
			timeframe = EXCLUDED.timeframe,
			price = EXCLUDED.price,
			reason_for_selling = EXCLUDED.reason_for_selling,
			submission_type = EXCLUDED.submission_type,
			crm_contact_id = EXCLUDED.crm_contact_id,
			ip = EXCLUDED.ip,
			last_updated = EXCLUDED.last_updated
	`, s.table, ledgerColumns)
	if _, err := s.db.Exec(ctx, query, rowArgs(row)...); err != nil {
		return "", classifyPg("append", err)
	}
	return RowRef(row.LeadID), nil
}

func (s *PostgresStore) Update(ctx context.Context, ref RowRef, row Row) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			submitted_at = COALESCE(submitted_at, $1),
			address = $3, street_address = $4, city = $5, state = $6, postal_code = $7,
			phone = $8, place_id = $9, first_name = $10, last_name = $11, email = $12,
			is_property_listed = $13, property_condition = $14, timeframe = $15,
			price = $16, reason_for_selling = $17, submission_type = $18,
			crm_contact_id = $19, ip = $20, last_updated = $21
		WHERE lead_id = $2
	`, s.table)
	args := rowArgs(row)
	args[1] = string(ref)
	ct, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return classifyPg("update", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func rowArgs(r Row) []any {
	return []any{
		nullableTime(r.Timestamp), r.LeadID, r.Address, r.StreetAddress, r.City, r.State, r.PostalCode,
		r.Phone, r.PlaceID, r.FirstName, r.LastName, r.Email, r.IsPropertyListed,
		r.PropertyCondition, r.Timeframe, r.Price, r.ReasonForSelling, r.SubmissionType,
		r.CRMContactID, r.IP, nullableTime(r.LastUpdated),
	}
}

func nullableTime(s string) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

// classifyPg marks constraint and data errors (SQLSTATE classes 22 and 23)
// as rejections. Everything else is treated as transient.
func classifyPg(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		class := pgErr.Code[:2]
		return &StoreError{Op: op, Err: err, Rejected: class == "22" || class == "23"}
	}
	return &StoreError{Op: op, Err: err}
}
