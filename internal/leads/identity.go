package leads

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oklog/ulid/v2"
)

const idPrefix = "lead_"

// FieldLeadID is the wire name of the lead identifier.
const FieldLeadID Field = "leadId"

// legacyIDPattern matches ids minted by the first version of the form
// (lead_<unix millis>_<base36 suffix>), which still live in the ledger.
var legacyIDPattern = regexp.MustCompile(`^lead_\d{13}_[a-z0-9]{1,16}$`)

// NewID returns a fresh lead id: a millisecond timestamp followed by a
// monotonic random suffix.
func NewID() string {
	return idPrefix + ulid.Make().String()
}

// ValidID reports whether id was minted by NewID or by the legacy form.
func ValidID(id string) bool {
	if legacyIDPattern.MatchString(id) {
		return true
	}
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}

// FieldSource is anything completeness can be evaluated against.
type FieldSource interface {
	Value(f Field) string
}

// Identity evaluates completeness against a fixed completion field set.
type Identity struct {
	fields []Field
}

// DefaultCompletionFields is the completion field set used when none is configured.
var DefaultCompletionFields = []Field{
	FieldFirstName,
	FieldLastName,
	FieldEmail,
	FieldPropertyCondition,
	FieldTimeframe,
	FieldPrice,
}

// DefaultIdentity uses DefaultCompletionFields.
func DefaultIdentity() Identity {
	return Identity{fields: append([]Field(nil), DefaultCompletionFields...)}
}

// NewIdentity builds an Identity from wire field names.
func NewIdentity(names []string) (Identity, error) {
	if len(names) == 0 {
		return DefaultIdentity(), nil
	}
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		f := Field(strings.TrimSpace(name))
		if !knownField(f) {
			return Identity{}, fmt.Errorf("leads: completion field %q: %w", name, ErrUnknownField)
		}
		fields = append(fields, f)
	}
	return Identity{fields: fields}, nil
}

// Fields returns the completion field set in order. The zero Identity uses
// DefaultCompletionFields.
func (i Identity) Fields() []Field {
	if len(i.fields) == 0 {
		return append([]Field(nil), DefaultCompletionFields...)
	}
	return append([]Field(nil), i.fields...)
}

// Missing lists the completion fields src does not have, in order.
func (i Identity) Missing(src FieldSource) []Field {
	var missing []Field
	for _, f := range i.Fields() {
		if src.Value(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// IsComplete reports whether every completion field is non-empty.
func (i Identity) IsComplete(src FieldSource) bool {
	return len(i.Missing(src)) == 0
}

// IsPartial is the negation of IsComplete.
func (i Identity) IsPartial(src FieldSource) bool {
	return !i.IsComplete(src)
}

func knownField(f Field) bool {
	if f == FieldIsPropertyListed {
		return true
	}
	for _, tf := range textFields {
		if tf.name == f {
			return true
		}
	}
	return false
}
