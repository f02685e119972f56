package academicapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

const (
	facultyField    = "profesores"
	facultyName     = "nombre"
	evaluationField = "actividades_evaluacion"
	evaluationType  = "tipo"
)

// Payload is the part of a subject guide the analysis uses. A nil slice means
// the field was absent from the document; an empty one means it was present
// and listed nobody.
type Payload struct {
	Faculty []string
	Methods []string
}

// ParsePayload decodes a subject guide leniently: list items may be objects
// or bare strings, and names may be numbers.
func ParsePayload(data []byte) (*Payload, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}

	p := &Payload{}
	if raw, ok := doc[facultyField]; ok {
		p.Faculty = names(raw, facultyName)
	}
	if raw, ok := doc[evaluationField]; ok {
		p.Methods = names(raw, evaluationType)
	}
	return p, nil
}

func names(raw any, field string) []string {
	out := []string{}
	for _, item := range cast.ToSlice(raw) {
		var value string
		switch v := item.(type) {
		case map[string]any:
			value = cast.ToString(v[field])
		default:
			value = cast.ToString(v)
		}
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
