package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresStoreFind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithExec(mock, "")
	submitted := time.Date(2024, 6, 1, 15, 4, 5, 0, time.UTC)
	cols := []string{"submitted_at", "lead_id", "address", "street_address", "city", "state", "postal_code",
		"phone", "place_id", "first_name", "last_name", "email", "is_property_listed",
		"property_condition", "timeframe", "price", "reason_for_selling", "submission_type",
		"crm_contact_id", "ip", "last_updated"}

	mock.ExpectQuery(`SELECT .* FROM "lead_ledger" WHERE lead_id = \$1`).
		WithArgs("lead_1").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			&submitted, "lead_1", "1 A St", "", "", "", "", "(555) 123-4567", "", "", "", "", "Yes",
			"", "", "", "", "partial", "", "", &submitted,
		))
	ref, row, err := store.Find(context.Background(), "lead_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ref != "lead_1" || row.Phone != "(555) 123-4567" || row.Timestamp != "2024-06-01T15:04:05Z" {
		t.Fatalf("unexpected row %q %+v", ref, row)
	}

	mock.ExpectQuery(`SELECT .* FROM "lead_ledger"`).WithArgs("lead_missing").WillReturnError(pgx.ErrNoRows)
	if _, _, err := store.Find(context.Background(), "lead_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// ledgerArgs lists the 21 bound values for row, matching timestamps loosely
// and pinning lead_id to leadID.
func ledgerArgs(row Row, leadID string) []any {
	return []any{
		pgxmock.AnyArg(), leadID, row.Address, row.StreetAddress, row.City, row.State, row.PostalCode,
		row.Phone, row.PlaceID, row.FirstName, row.LastName, row.Email, row.IsPropertyListed,
		row.PropertyCondition, row.Timeframe, row.Price, row.ReasonForSelling, row.SubmissionType,
		row.CRMContactID, row.IP, pgxmock.AnyArg(),
	}
}

func TestPostgresStoreAppendAndUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newPostgresStoreWithExec(mock, "seller_leads")
	row := RowFromLead(sampleLead(t))

	mock.ExpectExec(`(?s)INSERT INTO "seller_leads" .* ON CONFLICT \(lead_id\) DO UPDATE SET`).
		WithArgs(ledgerArgs(row, row.LeadID)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ref, err := store.Append(context.Background(), row)
	if err != nil || ref != RowRef(row.LeadID) {
		t.Fatalf("append: ref=%q err=%v", ref, err)
	}

	mock.ExpectExec(`(?s)UPDATE "seller_leads" SET .* WHERE lead_id = \$2`).
		WithArgs(ledgerArgs(row, row.LeadID)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.Update(context.Background(), ref, row); err != nil {
		t.Fatalf("update: %v", err)
	}

	mock.ExpectExec(`UPDATE "seller_leads" SET`).
		WithArgs(ledgerArgs(row, "lead_gone")...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	if err := store.Update(context.Background(), "lead_gone", row); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectExec(`INSERT INTO "seller_leads"`).
		WithArgs(ledgerArgs(row, row.LeadID)...).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "check violation"})
	_, err = store.Append(context.Background(), row)
	var se *StoreError
	if !errors.As(err, &se) || !se.Permanent() {
		t.Fatalf("expected permanent store error, got %v", err)
	}

	mock.ExpectExec(`INSERT INTO "seller_leads"`).
		WithArgs(ledgerArgs(row, row.LeadID)...).
		WillReturnError(errors.New("connection reset"))
	_, err = store.Append(context.Background(), row)
	if !errors.As(err, &se) || se.Permanent() {
		t.Fatalf("expected transient store error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
