package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Form Submissions"

var updatedRowPattern = regexp.MustCompile(`![A-Z]+(\d+)`)

// SheetsConfig locates the spreadsheet and the service account used to reach it.
type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	ClientEmail     string
	PrivateKey      string
}

// SheetsStore keeps the ledger in a Google Sheets tab, one row per lead.
type SheetsStore struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	sheet         string
}

// NewSheetsStore builds the Sheets client. Extra options are appended after
// the credentials, so tests can point the client at a local endpoint.
func NewSheetsStore(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*SheetsStore, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("ledger: spreadsheet id required")
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = defaultSheetName
	}

	clientOpts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	creds, err := serviceAccountJSON(cfg)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		clientOpts = append(clientOpts, option.WithCredentialsJSON(creds))
	}
	clientOpts = append(clientOpts, opts...)

	srv, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("ledger: sheets client: %w", err)
	}
	return &SheetsStore{
		values:        srv.Spreadsheets.Values,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         sheet,
	}, nil
}

// serviceAccountJSON returns the explicit credentials document, or one
// assembled from the client email and private key. nil means use the
// ambient application default credentials.
func serviceAccountJSON(cfg SheetsConfig) ([]byte, error) {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []byte(js), nil
	}
	if cfg.ClientEmail == "" && cfg.PrivateKey == "" {
		return nil, nil
	}
	if cfg.ClientEmail == "" || cfg.PrivateKey == "" {
		return nil, errors.New("ledger: both client email and private key are required")
	}
	return json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": cfg.ClientEmail,
		"private_key":  strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n"),
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
}

// Find scans the leadId column. Row 1 is the header.
func (s *SheetsStore) Find(ctx context.Context, leadID string) (RowRef, Row, error) {
	col, err := s.values.Get(s.spreadsheetID, s.rangeOf("B:B")).Context(ctx).Do()
	if err != nil {
		return "", Row{}, classify("find", err)
	}
	rowNum := 0
	for i, cells := range col.Values {
		if len(cells) > 0 && cellString(cells[0]) == leadID {
			rowNum = i + 1
			break
		}
	}
	if rowNum == 0 {
		return "", Row{}, ErrNotFound
	}

	ref := RowRef(strconv.Itoa(rowNum))
	line, err := s.values.Get(s.spreadsheetID, s.rowRange(ref)).Context(ctx).Do()
	if err != nil {
		return "", Row{}, classify("read row", err)
	}
	if len(line.Values) == 0 {
		return ref, Row{LeadID: leadID}, nil
	}
	return ref, RowFromValues(line.Values[0]), nil
}

func (s *SheetsStore) Append(ctx context.Context, row Row) (RowRef, error) {
	resp, err := s.values.Append(s.spreadsheetID, s.rangeOf("A:"+lastCol), valueRange(row)).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("append", err)
	}
	if resp.Updates != nil {
		if m := updatedRowPattern.FindStringSubmatch(resp.Updates.UpdatedRange); m != nil {
			return RowRef(m[1]), nil
		}
	}
	return "", nil
}

func (s *SheetsStore) Update(ctx context.Context, ref RowRef, row Row) error {
	if _, err := strconv.Atoi(string(ref)); err != nil {
		return &StoreError{Op: "update", Err: fmt.Errorf("invalid row reference %q", ref), Rejected: true}
	}
	_, err := s.values.Update(s.spreadsheetID, s.rowRange(ref), valueRange(row)).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return classify("update", err)
	}
	return nil
}

func (s *SheetsStore) rangeOf(cells string) string {
	return fmt.Sprintf("'%s'!%s", s.sheet, cells)
}

func (s *SheetsStore) rowRange(ref RowRef) string {
	return s.rangeOf(fmt.Sprintf("A%s:%s%s", ref, lastCol, ref))
}

func valueRange(row Row) *sheets.ValueRange {
	values := row.Values()
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = escapeFormula(v)
	}
	return &sheets.ValueRange{MajorDimension: "ROWS", Values: [][]interface{}{cells}}
}

// escapeFormula keeps user text from being evaluated as a formula under
// USER_ENTERED input. A leading '-' is escaped too, so a price such as
// "-5000" is stored as text.
func escapeFormula(v string) string {
	if v != "" && strings.ContainsRune("=+-@", rune(v[0])) {
		return "'" + v
	}
	return v
}

func classify(op string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		rejected := gErr.Code >= 400 && gErr.Code < 500 && gErr.Code != http.StatusRequestTimeout
		return &StoreError{Op: op, Err: err, Rejected: rejected, HTTPCode: gErr.Code}
	}
	return &StoreError{Op: op, Err: err}
}
