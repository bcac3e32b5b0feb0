package leads

import (
	"strings"
	"time"
)

// SubmissionType marks whether a lead has every completion field.
type SubmissionType string

const (
	SubmissionPartial  SubmissionType = "partial"
	SubmissionComplete SubmissionType = "complete"
)

// Kind is the submission kind requested by the caller.
type Kind string

const (
	KindPartial  Kind = "partial"
	KindComplete Kind = "complete"
)

// Contact holds the seller's address and contact details.
type Contact struct {
	Address       string `json:"address"`
	StreetAddress string `json:"streetAddress,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	PlaceID       string `json:"placeId,omitempty"`
	Phone         string `json:"phone"`
	FirstName     string `json:"firstName,omitempty"`
	LastName      string `json:"lastName,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Property holds what the seller told us about the house.
type Property struct {
	IsListed         *bool  `json:"isListed,omitempty"`
	Condition        string `json:"condition,omitempty"`
	Timeframe        string `json:"timeframe,omitempty"`
	Price            string `json:"price,omitempty"`
	ReasonForSelling string `json:"reasonForSelling,omitempty"`
}

// Provenance records where the latest write came from.
type Provenance struct {
	IP             string   `json:"ip,omitempty"`
	RecaptchaScore *float64 `json:"recaptchaScore,omitempty"`
	Source         string   `json:"source,omitempty"`
}

// Lead is the canonical accumulated state of one prospective seller.
type Lead struct {
	ID             string         `json:"leadId"`
	CRMContactID   string         `json:"crmContactId,omitempty"`
	Contact        Contact        `json:"contact"`
	Property       Property       `json:"property"`
	SubmissionType SubmissionType `json:"submissionType"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastUpdatedAt  time.Time      `json:"lastUpdatedAt"`
	Provenance     Provenance     `json:"provenance"`
}

// IsComplete reports whether the lead has reached the complete state.
func (l *Lead) IsComplete() bool {
	return l != nil && l.SubmissionType == SubmissionComplete
}

// Clone returns a deep copy so concurrent sync targets never share pointers.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	c := *l
	if l.Property.IsListed != nil {
		v := *l.Property.IsListed
		c.Property.IsListed = &v
	}
	if l.Provenance.RecaptchaScore != nil {
		v := *l.Provenance.RecaptchaScore
		c.Provenance.RecaptchaScore = &v
	}
	return &c
}

// Payload is the flat request body accepted by the intake endpoints and
// persisted by the funnel controller.
type Payload struct {
	LeadID            string   `json:"leadId,omitempty"`
	CRMContactID      string   `json:"crmContactId,omitempty"`
	Address           string   `json:"address,omitempty"`
	StreetAddress     string   `json:"streetAddress,omitempty"`
	City              string   `json:"city,omitempty"`
	State             string   `json:"state,omitempty"`
	PostalCode        string   `json:"postalCode,omitempty"`
	PlaceID           string   `json:"placeId,omitempty"`
	Phone             string   `json:"phone,omitempty"`
	FirstName         string   `json:"firstName,omitempty"`
	LastName          string   `json:"lastName,omitempty"`
	Email             string   `json:"email,omitempty"`
	IsPropertyListed  *bool    `json:"isPropertyListed,omitempty"`
	PropertyCondition string   `json:"propertyCondition,omitempty"`
	Timeframe         string   `json:"timeframe,omitempty"`
	Price             string   `json:"price,omitempty"`
	ReasonForSelling  string   `json:"reasonForSelling,omitempty"`
	RecaptchaScore    *float64 `json:"recaptchaScore,omitempty"`
	Source            string   `json:"source,omitempty"`
}

// Field names a mergeable text field using its wire name.
type Field string

const (
	FieldCRMContactID      Field = "crmContactId"
	FieldAddress           Field = "address"
	FieldStreetAddress     Field = "streetAddress"
	FieldCity              Field = "city"
	FieldState             Field = "state"
	FieldPostalCode        Field = "postalCode"
	FieldPlaceID           Field = "placeId"
	FieldPhone             Field = "phone"
	FieldFirstName         Field = "firstName"
	FieldLastName          Field = "lastName"
	FieldEmail             Field = "email"
	FieldPropertyCondition Field = "propertyCondition"
	FieldTimeframe         Field = "timeframe"
	FieldPrice             Field = "price"
	FieldReasonForSelling  Field = "reasonForSelling"
	FieldSourceTag         Field = "source"
	FieldIsPropertyListed  Field = "isPropertyListed"
	FieldRecaptchaScore    Field = "recaptchaScore"
)

// textFields lists every string field of Payload in wire order.
var textFields = []struct {
	name Field
	ptr  func(*Payload) *string
}{
	{FieldCRMContactID, func(p *Payload) *string { return &p.CRMContactID }},
	{FieldAddress, func(p *Payload) *string { return &p.Address }},
	{FieldStreetAddress, func(p *Payload) *string { return &p.StreetAddress }},
	{FieldCity, func(p *Payload) *string { return &p.City }},
	{FieldState, func(p *Payload) *string { return &p.State }},
	{FieldPostalCode, func(p *Payload) *string { return &p.PostalCode }},
	{FieldPlaceID, func(p *Payload) *string { return &p.PlaceID }},
	{FieldPhone, func(p *Payload) *string { return &p.Phone }},
	{FieldFirstName, func(p *Payload) *string { return &p.FirstName }},
	{FieldLastName, func(p *Payload) *string { return &p.LastName }},
	{FieldEmail, func(p *Payload) *string { return &p.Email }},
	{FieldPropertyCondition, func(p *Payload) *string { return &p.PropertyCondition }},
	{FieldTimeframe, func(p *Payload) *string { return &p.Timeframe }},
	{FieldPrice, func(p *Payload) *string { return &p.Price }},
	{FieldReasonForSelling, func(p *Payload) *string { return &p.ReasonForSelling }},
	{FieldSourceTag, func(p *Payload) *string { return &p.Source }},
}

// Value returns the trimmed text value of f, or "" when f is unknown.
// isPropertyListed renders as "Yes"/"No" so it can take part in
// completeness checks.
func (p Payload) Value(f Field) string {
	if f == FieldIsPropertyListed {
		if p.IsPropertyListed == nil {
			return ""
		}
		if *p.IsPropertyListed {
			return "Yes"
		}
		return "No"
	}
	for _, tf := range textFields {
		if tf.name == f {
			return strings.TrimSpace(*tf.ptr(&p))
		}
	}
	return ""
}

// Overlay returns base with every present field of in applied on top.
// A field is present when it is non-empty after trimming, or non-nil for
// pointer fields. LeadID is taken from in only when base has none.
func Overlay(base, in Payload) Payload {
	out := base
	if out.LeadID == "" {
		out.LeadID = strings.TrimSpace(in.LeadID)
	}
	for _, tf := range textFields {
		if v := strings.TrimSpace(*tf.ptr(&in)); v != "" {
			*tf.ptr(&out) = v
		}
	}
	if in.IsPropertyListed != nil {
		v := *in.IsPropertyListed
		out.IsPropertyListed = &v
	}
	if in.RecaptchaScore != nil {
		v := *in.RecaptchaScore
		out.RecaptchaScore = &v
	}
	return out
}

// Payload flattens the lead back into request form.
func (l *Lead) Payload() Payload {
	if l == nil {
		return Payload{}
	}
	p := Payload{
		LeadID:            l.ID,
		CRMContactID:      l.CRMContactID,
		Address:           l.Contact.Address,
		StreetAddress:     l.Contact.StreetAddress,
		City:              l.Contact.City,
		State:             l.Contact.State,
		PostalCode:        l.Contact.PostalCode,
		PlaceID:           l.Contact.PlaceID,
		Phone:             l.Contact.Phone,
		FirstName:         l.Contact.FirstName,
		LastName:          l.Contact.LastName,
		Email:             l.Contact.Email,
		PropertyCondition: l.Property.Condition,
		Timeframe:         l.Property.Timeframe,
		Price:             l.Property.Price,
		ReasonForSelling:  l.Property.ReasonForSelling,
		Source:            l.Provenance.Source,
	}
	if l.Property.IsListed != nil {
		v := *l.Property.IsListed
		p.IsPropertyListed = &v
	}
	if l.Provenance.RecaptchaScore != nil {
		v := *l.Provenance.RecaptchaScore
		p.RecaptchaScore = &v
	}
	return p
}

// Value implements FieldSource over the accumulated record.
func (l *Lead) Value(f Field) string {
	return l.Payload().Value(f)
}

func (l *Lead) applyPayload(p Payload) {
	l.CRMContactID = p.CRMContactID
	l.Contact = Contact{
		Address:       p.Address,
		StreetAddress: p.StreetAddress,
		City:          p.City,
		State:         p.State,
		PostalCode:    p.PostalCode,
		PlaceID:       p.PlaceID,
		Phone:         p.Phone,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Email:         p.Email,
	}
	l.Property = Property{
		IsListed:         p.IsPropertyListed,
		Condition:        p.PropertyCondition,
		Timeframe:        p.Timeframe,
		Price:            p.Price,
		ReasonForSelling: p.ReasonForSelling,
	}
	l.Provenance.RecaptchaScore = p.RecaptchaScore
	l.Provenance.Source = p.Source
}
