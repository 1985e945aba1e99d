package phi

import (
	"log/slog"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor removes protected health information from request payloads before
// they are attached to audit events. Audit records must never carry raw
// patient data.
type Redactor struct {
	fieldsToRedact map[string]struct{} // Use a map for O(1) lookups
	logger         *slog.Logger
}

// NewRedactor creates a new Redactor instance with a given set of fields to
// redact.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		fieldSet[field] = struct{}{}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger,
	}
}

// Redact returns a copy of doc with configured fields replaced by a
// placeholder, descending into nested documents and document lists.
func (r *Redactor) Redact(doc map[string]any) map[string]any {
	if len(r.fieldsToRedact) == 0 || len(doc) == 0 {
		return doc
	}

	out := make(map[string]any, len(doc))
	for key, value := range doc {
		if _, ok := r.fieldsToRedact[key]; ok {
			out[key] = RedactedPlaceholder
			continue
		}
		out[key] = r.redactValue(value)
	}
	return out
}

func (r *Redactor) redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return r.Redact(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.redactValue(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			out[i] = r.Redact(item)
		}
		return out
	default:
		return value
	}
}
