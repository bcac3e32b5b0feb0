package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
)

// Columns is the fixed ledger layout, column A first.
var Columns = []string{
	"timestamp",
	"leadId",
	"address",
	"streetAddress",
	"city",
	"state",
	"postalCode",
	"phone",
	"placeId",
	"firstName",
	"lastName",
	"email",
	"isPropertyListed",
	"propertyCondition",
	"timeframe",
	"price",
	"reasonForSelling",
	"submissionType",
	"crmContactId",
	"ip",
	"lastUpdated",
}

const (
	colLeadID = 1
	lastCol   = "U"
)

// Row is one ledger line. Every cell is text; timestamps are RFC 3339.
type Row struct {
	Timestamp         string
	LeadID            string
	Address           string
	StreetAddress     string
	City              string
	State             string
	PostalCode        string
	Phone             string
	PlaceID           string
	FirstName         string
	LastName          string
	Email             string
	IsPropertyListed  string
	PropertyCondition string
	Timeframe         string
	Price             string
	ReasonForSelling  string
	SubmissionType    string
	CRMContactID      string
	IP                string
	LastUpdated       string
}

// RowFromLead renders a lead in ledger form.
func RowFromLead(l *leads.Lead) Row {
	return Row{
		Timestamp:         formatTime(l.CreatedAt),
		LeadID:            l.ID,
		Address:           l.Contact.Address,
		StreetAddress:     l.Contact.StreetAddress,
		City:              l.Contact.City,
		State:             l.Contact.State,
		PostalCode:        l.Contact.PostalCode,
		Phone:             l.Contact.Phone,
		PlaceID:           l.Contact.PlaceID,
		FirstName:         l.Contact.FirstName,
		LastName:          l.Contact.LastName,
		Email:             l.Contact.Email,
		IsPropertyListed:  l.Value(leads.FieldIsPropertyListed),
		PropertyCondition: l.Property.Condition,
		Timeframe:         l.Property.Timeframe,
		Price:             l.Property.Price,
		ReasonForSelling:  l.Property.ReasonForSelling,
		SubmissionType:    string(l.SubmissionType),
		CRMContactID:      l.CRMContactID,
		IP:                l.Provenance.IP,
		LastUpdated:       formatTime(l.LastUpdatedAt),
	}
}

// Lead rebuilds the accumulated lead from a stored row.
func (r Row) Lead() *leads.Lead {
	l := &leads.Lead{
		ID:           r.LeadID,
		CRMContactID: r.CRMContactID,
		Contact: leads.Contact{
			Address:       r.Address,
			StreetAddress: r.StreetAddress,
			City:          r.City,
			State:         r.State,
			PostalCode:    r.PostalCode,
			PlaceID:       r.PlaceID,
			Phone:         leads.NormalizePhone(r.Phone),
			FirstName:     r.FirstName,
			LastName:      r.LastName,
			Email:         r.Email,
		},
		Property: leads.Property{
			Condition:        r.PropertyCondition,
			Timeframe:        r.Timeframe,
			Price:            r.Price,
			ReasonForSelling: r.ReasonForSelling,
		},
		SubmissionType: leads.SubmissionPartial,
		CreatedAt:      parseTime(r.Timestamp),
		LastUpdatedAt:  parseTime(r.LastUpdated),
		Provenance:     leads.Provenance{IP: r.IP},
	}
	switch r.IsPropertyListed {
	case "Yes":
		v := true
		l.Property.IsListed = &v
	case "No":
		v := false
		l.Property.IsListed = &v
	}
	if r.SubmissionType == string(leads.SubmissionComplete) {
		l.SubmissionType = leads.SubmissionComplete
	}
	return l
}

// Values returns the cells in column order.
func (r Row) Values() []string {
	return []string{
		r.Timestamp, r.LeadID, r.Address, r.StreetAddress, r.City, r.State,
		r.PostalCode, r.Phone, r.PlaceID, r.FirstName, r.LastName, r.Email,
		r.IsPropertyListed, r.PropertyCondition, r.Timeframe, r.Price,
		r.ReasonForSelling, r.SubmissionType, r.CRMContactID, r.IP, r.LastUpdated,
	}
}

// RowFromValues is the inverse of Values. Short rows are padded with blanks.
func RowFromValues(cells []any) Row {
	v := make([]string, len(Columns))
	for i := range v {
		if i < len(cells) && cells[i] != nil {
			v[i] = cellString(cells[i])
		}
	}
	return Row{
		Timestamp: v[0], LeadID: v[1], Address: v[2], StreetAddress: v[3],
		City: v[4], State: v[5], PostalCode: v[6], Phone: v[7], PlaceID: v[8],
		FirstName: v[9], LastName: v[10], Email: v[11], IsPropertyListed: v[12],
		PropertyCondition: v[13], Timeframe: v[14], Price: v[15],
		ReasonForSelling: v[16], SubmissionType: v[17], CRMContactID: v[18],
		IP: v[19], LastUpdated: v[20],
	}
}

func cellString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
