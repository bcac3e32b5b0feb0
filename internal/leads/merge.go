package leads

import "time"

// Merge folds a validated payload into the existing lead and returns the new
// record. existing is never modified.
//
// Present incoming fields overwrite, absent ones keep their prior value.
// Completeness is recomputed over the merged record and never goes back from
// complete to partial.
func Merge(existing *Lead, in Payload, ident Identity, now time.Time) *Lead {
	now = now.UTC()
	var merged *Lead
	if existing == nil {
		id := in.LeadID
		if !ValidID(id) {
			id = NewID()
		}
		merged = &Lead{ID: id, CreatedAt: now}
	} else {
		merged = existing.Clone()
		if merged.CreatedAt.IsZero() {
			merged.CreatedAt = now
		}
	}

	base := merged.Payload()
	merged.applyPayload(Overlay(base, in))

	if merged.SubmissionType != SubmissionComplete {
		merged.SubmissionType = SubmissionPartial
		if ident.IsComplete(merged) {
			merged.SubmissionType = SubmissionComplete
		}
	}
	merged.LastUpdatedAt = now
	return merged
}

// WithProvenance stamps the request origin on the lead.
func (l *Lead) WithProvenance(ip string) *Lead {
	if ip != "" {
		l.Provenance.IP = ip
	}
	return l
}
