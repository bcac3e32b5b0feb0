package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/cashoffer-funnel/internal/crm"
	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/internal/leadsync"
	"github.com/wolfman30/cashoffer-funnel/internal/ledger"
	"github.com/wolfman30/cashoffer-funnel/internal/relay"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

type downCRM struct{}

func (downCRM) Create(context.Context, crm.Contact) (string, error) {
	return "", errors.New("connection refused")
}
func (downCRM) Update(context.Context, string, crm.Contact) error {
	return errors.New("connection refused")
}
func (downCRM) FindByEmail(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

type downLedger struct{}

func (downLedger) Find(context.Context, string) (ledger.RowRef, ledger.Row, error) {
	return "", ledger.Row{}, errors.New("sheets unavailable")
}
func (downLedger) Append(context.Context, ledger.Row) (ledger.RowRef, error) {
	return "", errors.New("sheets unavailable")
}
func (downLedger) Update(context.Context, ledger.RowRef, ledger.Row) error {
	return errors.New("sheets unavailable")
}

// flakyLedger fails the next failFinds lookups, then defers to the
// wrapped store.
type flakyLedger struct {
	*ledger.MemoryStore
	mu        sync.Mutex
	failFinds int
}

func (f *flakyLedger) Find(ctx context.Context, leadID string) (ledger.RowRef, ledger.Row, error) {
	f.mu.Lock()
	fail := f.failFinds > 0
	if fail {
		f.failFinds--
	}
	f.mu.Unlock()
	if fail {
		return "", ledger.Row{}, errors.New("sheets: 503 backend error")
	}
	return f.MemoryStore.Find(ctx, leadID)
}

func (f *flakyLedger) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFinds = n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []relay.Event
}

func (p *recordingPublisher) Publish(evt relay.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

type harness struct {
	router    http.Handler
	ledger    *ledger.MemoryStore
	crm       *crm.MemoryStore
	publisher *recordingPublisher
}

func newHarness(t *testing.T, ledgerStore ledger.Store, crmStore leadsync.CRM) *harness {
	t.Helper()
	return newHarnessWithIdentity(t, ledgerStore, crmStore, leads.DefaultIdentity())
}

func newHarnessWithIdentity(t *testing.T, ledgerStore ledger.Store, crmStore leadsync.CRM, ident leads.Identity) *harness {
	t.Helper()
	mem, _ := ledgerStore.(*ledger.MemoryStore)
	contacts, _ := crmStore.(*crm.MemoryStore)

	gw := leadsync.New(ledgerStore, crmStore, leadsync.Config{
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		Logger:         logging.Discard(),
	})
	t.Cleanup(gw.Close)

	pub := &recordingPublisher{}
	loader := ledger.NewLoader(ledgerStore)
	svc := NewService(loader, gw, Config{Identity: ident, Publisher: pub, Logger: logging.Discard()})
	r := chi.NewRouter()
	h := NewHandler(svc, loader, logging.Discard())
	h.Mount(r)
	r.Get("/admin/leads/{leadId}", h.Lookup)
	return &harness{router: r, ledger: mem, crm: contacts, publisher: pub}
}

func (h *harness) post(t *testing.T, path string, body any) (int, Response) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func TestPartialThenCompleteUpdatesSameRow(t *testing.T) {
	h := newHarness(t, ledger.NewMemoryStore(), crm.NewMemoryStore())

	code, first := h.post(t, "/api/leads/partial", map[string]any{
		"address": "1 Main St, Springfield",
		"phone":   "555-123-4567",
	})
	require.Equal(t, http.StatusOK, code)
	require.True(t, first.Success)
	require.True(t, leads.ValidID(first.LeadID))
	assert.Equal(t, leads.SubmissionPartial, first.SubmissionType)
	assert.Equal(t, "contact_1", first.CRMContactID)
	assert.Empty(t, first.Warning)

	code, second := h.post(t, "/api/leads/complete", map[string]any{
		"leadId":            first.LeadID,
		"firstName":         "Jane",
		"lastName":          "Doe",
		"email":             "jane@example.com",
		"propertyCondition": "Needs work",
		"timeframe":         "ASAP",
		"price":             "250000",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first.LeadID, second.LeadID)
	assert.Equal(t, leads.SubmissionComplete, second.SubmissionType)
	assert.Equal(t, "contact_1", second.CRMContactID)

	rows := h.ledger.Rows()
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, first.LeadID, row.LeadID)
	assert.Equal(t, "(555) 123-4567", row.Phone)
	assert.Equal(t, "1 Main St, Springfield", row.Address)
	assert.Equal(t, "Jane", row.FirstName)
	assert.Equal(t, "complete", row.SubmissionType)
	assert.Equal(t, "contact_1", row.CRMContactID)
	assert.Equal(t, "203.0.113.9", row.IP)
	assert.Equal(t, 1, h.crm.Len())

	h.publisher.mu.Lock()
	defer h.publisher.mu.Unlock()
	require.Len(t, h.publisher.events, 2)
	assert.Equal(t, relay.EventLeadPartial, h.publisher.events[0].Type)
	assert.Equal(t, relay.EventLeadComplete, h.publisher.events[1].Type)
}

func TestValidationNamesField(t *testing.T) {
	h := newHarness(t, ledger.NewMemoryStore(), crm.NewMemoryStore())

	code, resp := h.post(t, "/api/leads/partial", map[string]any{"address": "1 Main St"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "phone", resp.Field)

	code, resp = h.post(t, "/api/leads/complete", map[string]any{
		"address": "1 Main St", "phone": "(555) 123-4567", "firstName": "Jane",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "lastName", resp.Field)

	code, resp = h.post(t, "/api/leads/partial", map[string]any{
		"leadId": "not-a-lead", "address": "1 Main St", "phone": "(555) 123-4567",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "leadId", resp.Field)

	assert.Empty(t, h.ledger.Rows())
}

func TestInvalidJSON(t *testing.T) {
	h := newHarness(t, ledger.NewMemoryStore(), crm.NewMemoryStore())
	req := httptest.NewRequest(http.MethodPost, "/api/leads/partial", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPartialFailureReturnsWarning(t *testing.T) {
	h := newHarness(t, ledger.NewMemoryStore(), downCRM{})

	code, resp := h.post(t, "/api/leads/partial", map[string]any{
		"address": "1 Main St", "phone": "(555) 123-4567",
	})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Warning, "crm")
	assert.Empty(t, resp.CRMContactID)
	assert.Len(t, h.ledger.Rows(), 1)
}

func TestTotalFailureStillReturnsLeadID(t *testing.T) {
	h := newHarness(t, downLedger{}, downCRM{})

	code, resp := h.post(t, "/api/leads/partial", map[string]any{
		"address": "1 Main St", "phone": "(555) 123-4567",
	})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, resp.Success)
	assert.True(t, leads.ValidID(resp.LeadID))
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, h.publisher.events)
}

func TestLegacyRoutesInferKind(t *testing.T) {
	h := newHarness(t, ledger.NewMemoryStore(), crm.NewMemoryStore())

	code, resp := h.post(t, "/api/capture-lead", map[string]any{
		"address": "9 Elm St", "phone": "(555) 987-6543",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, leads.SubmissionPartial, resp.SubmissionType)

	code, resp = h.post(t, "/api/submit-lead", map[string]any{
		"leadId": resp.LeadID, "firstName": "Sam", "lastName": "Lee", "email": "sam@example.com",
		"propertyCondition": "Good", "timeframe": "3 months", "price": "300000",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, leads.SubmissionComplete, resp.SubmissionType)
	assert.Len(t, h.ledger.Rows(), 1)
}

func TestCompletedLeadNeverRegresses(t *testing.T) {
	h := newHarness(t, ledger.NewMemoryStore(), crm.NewMemoryStore())
	_, resp := h.post(t, "/api/leads/complete", map[string]any{
		"address": "1 Main St", "phone": "(555) 123-4567",
		"firstName": "Jane", "lastName": "Doe", "email": "jane@example.com",
		"propertyCondition": "Good", "timeframe": "ASAP", "price": "1",
	})
	require.Equal(t, leads.SubmissionComplete, resp.SubmissionType)

	code, again := h.post(t, "/api/leads/partial", map[string]any{
		"leadId": resp.LeadID, "reasonForSelling": "Relocating",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, leads.SubmissionComplete, again.SubmissionType)
	assert.Equal(t, "Relocating", h.ledger.Rows()[0].ReasonForSelling)
}

func TestLookup(t *testing.T) {
	h := newHarness(t, ledger.NewMemoryStore(), crm.NewMemoryStore())
	_, resp := h.post(t, "/api/leads/partial", map[string]any{"address": "1 Main St", "phone": "(555) 123-4567"})

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads/"+resp.LeadID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var lead leads.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lead))
	assert.Equal(t, resp.LeadID, lead.ID)
	assert.Equal(t, "(555) 123-4567", lead.Contact.Phone)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads/"+leads.NewID(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads/bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadFailureLeavesStoredLeadIntact(t *testing.T) {
	store := &flakyLedger{MemoryStore: ledger.NewMemoryStore()}
	h := newHarness(t, store, crm.NewMemoryStore())

	code, resp := h.post(t, "/api/leads/complete", map[string]any{
		"address": "1 Main St", "phone": "(555) 123-4567",
		"firstName": "Jane", "lastName": "Doe", "email": "jane@example.com",
		"propertyCondition": "Good", "timeframe": "ASAP", "price": "250000",
	})
	require.Equal(t, http.StatusOK, code)
	before := store.Rows()
	require.Len(t, before, 1)

	store.failNext(1)
	code, again := h.post(t, "/api/leads/partial", map[string]any{
		"leadId": resp.LeadID, "address": "1 Main St", "phone": "(555) 123-4567",
	})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, again.Success)
	assert.Equal(t, resp.LeadID, again.LeadID)
	assert.Positive(t, again.RetryAfter)

	after := store.Rows()
	require.Len(t, after, 1)
	assert.Equal(t, "complete", after[0].SubmissionType)
	assert.Equal(t, "Jane", after[0].FirstName)
	assert.Equal(t, "250000", after[0].Price)
	assert.Equal(t, before[0].Timestamp, after[0].Timestamp)

	h.publisher.mu.Lock()
	assert.Len(t, h.publisher.events, 1)
	h.publisher.mu.Unlock()

	code, retried := h.post(t, "/api/leads/partial", map[string]any{
		"leadId": resp.LeadID, "reasonForSelling": "Relocating",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, leads.SubmissionComplete, retried.SubmissionType)
	assert.Equal(t, "Jane", store.Rows()[0].FirstName)
}

func TestCompleteRequiresConfiguredFields(t *testing.T) {
	ident, err := leads.NewIdentity([]string{
		"firstName", "lastName", "email", "propertyCondition", "timeframe", "price", "reasonForSelling",
	})
	require.NoError(t, err)
	h := newHarnessWithIdentity(t, ledger.NewMemoryStore(), crm.NewMemoryStore(), ident)

	fields := map[string]any{
		"address": "1 Main St", "phone": "(555) 123-4567",
		"firstName": "Jane", "lastName": "Doe", "email": "jane@example.com",
		"propertyCondition": "Good", "timeframe": "ASAP", "price": "250000",
	}
	code, resp := h.post(t, "/api/leads/complete", fields)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "reasonForSelling", resp.Field)
	assert.Empty(t, h.ledger.Rows())

	fields["reasonForSelling"] = "Relocating"
	code, resp = h.post(t, "/api/leads/complete", fields)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, leads.SubmissionComplete, resp.SubmissionType)
}

func TestRemainingLegacyRoutes(t *testing.T) {
	h := newHarness(t, ledger.NewMemoryStore(), crm.NewMemoryStore())

	code, resp := h.post(t, "/api/partial-lead", map[string]any{
		"address": "9 Elm St", "phone": "(555) 987-6543",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, leads.SubmissionPartial, resp.SubmissionType)

	code, resp = h.post(t, "/api/save-property-details", map[string]any{
		"leadId": resp.LeadID, "propertyCondition": "Fair", "isPropertyListed": false,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, leads.SubmissionPartial, resp.SubmissionType)
	rows := h.ledger.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Fair", rows[0].PropertyCondition)
}
