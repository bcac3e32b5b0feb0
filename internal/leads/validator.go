package leads

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`^\(\d{3}\) \d{3}-\d{4}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Validate checks p for the given kind against the default completion field
// set.
func Validate(p Payload, kind Kind) error {
	return DefaultIdentity().Validate(p, kind)
}

// Validate checks p for the given kind. Complete submissions must carry every
// field of i's completion set, so a lead accepted as complete is also one
// IsComplete agrees with. Checks run in a fixed order and the first failure
// is returned, so the same input always names the same field.
func (i Identity) Validate(p Payload, kind Kind) error {
	if kind != KindPartial && kind != KindComplete {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported submission kind %q", kind)}
	}
	if id := strings.TrimSpace(p.LeadID); id != "" && !ValidID(id) {
		return &ValidationError{Field: FieldLeadID, Reason: "is malformed"}
	}
	if p.Value(FieldAddress) == "" {
		return required(FieldAddress)
	}
	phone := p.Value(FieldPhone)
	if phone == "" {
		return required(FieldPhone)
	}
	if !phonePattern.MatchString(phone) {
		return &ValidationError{Field: FieldPhone, Reason: "must match (XXX) XXX-XXXX"}
	}
	if kind == KindComplete {
		if missing := i.Missing(p); len(missing) > 0 {
			return required(missing[0])
		}
	}
	if email := p.Value(FieldEmail); email != "" && !emailPattern.MatchString(email) {
		return &ValidationError{Field: FieldEmail, Reason: "is not a valid email address"}
	}
	if s := p.RecaptchaScore; s != nil && (*s < 0 || *s > 1) {
		return &ValidationError{Field: FieldRecaptchaScore, Reason: "must be between 0 and 1"}
	}
	return nil
}

// Normalize trims every text field and canonicalizes the phone number.
func Normalize(p Payload) Payload {
	out := Overlay(Payload{}, p)
	out.Phone = NormalizePhone(out.Phone)
	return out
}

// NormalizePhone formats ten-digit US numbers (optionally prefixed with 1)
// as (XXX) XXX-XXXX. Anything else is returned trimmed and unchanged so the
// validator can reject it.
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || phonePattern.MatchString(value) {
		return value
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '(', r == ')', r == '+':
		default:
			return value
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return value
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
}
