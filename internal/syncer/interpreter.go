// Package syncer opportunistically mirrors directory entities observed in
// proxied responses. It runs strictly after the response has been returned
// to the caller and is fully isolated from it: recognition or upsert
// failures are recorded on the audit entry and go nowhere else.
package syncer

import (
	"encoding/json"
	"fmt"

	"github.com/dirgate/dirgate/internal/domain"
)

// RecognizedEntity is one directory object extracted from a response body.
type RecognizedEntity struct {
	Type       domain.EntityType
	UpstreamID string
	Attributes map[string]any
}

// Envelope keys whose array elements are inspected. The elements themselves
// are still matched structurally; the key only tells us where to look.
var envelopeKeys = []string{"users", "groups", "organizationUnits", "members", "items"}

// Recognize decodes a JSON body and structurally matches a closed set of
// entity shapes: user, group, org unit, membership. Matching is by field
// shape, never by the call path that produced the body. A body matching
// nothing returns (nil, nil) — a valid outcome, not an error.
func Recognize(body []byte) ([]RecognizedEntity, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("syncer.Recognize: %w", err)
	}

	var out []RecognizedEntity
	collect(decoded, &out)
	return out, nil
}

func collect(v any, out *[]RecognizedEntity) {
	switch val := v.(type) {
	case map[string]any:
		if ent, ok := recognizeObject(val); ok {
			*out = append(*out, ent)
			return
		}
		for _, key := range envelopeKeys {
			if arr, ok := val[key].([]any); ok {
				for _, elem := range arr {
					collect(elem, out)
				}
			}
		}
	case []any:
		for _, elem := range val {
			collect(elem, out)
		}
	}
}

// recognizeObject tries each shape in sequence. Order matters: users carry
// both an email and an id, so the more specific shapes go first.
func recognizeObject(obj map[string]any) (RecognizedEntity, bool) {
	if ent, ok := recognizeUser(obj); ok {
		return ent, true
	}
	if ent, ok := recognizeOrgUnit(obj); ok {
		return ent, true
	}
	if ent, ok := recognizeGroup(obj); ok {
		return ent, true
	}
	if ent, ok := recognizeMembership(obj); ok {
		return ent, true
	}
	return RecognizedEntity{}, false
}

func recognizeUser(obj map[string]any) (RecognizedEntity, bool) {
	id := str(obj, "id")
	if str(obj, "primaryEmail") == "" || id == "" {
		return RecognizedEntity{}, false
	}
	return RecognizedEntity{Type: domain.EntityUser, UpstreamID: id, Attributes: obj}, true
}

func recognizeOrgUnit(obj map[string]any) (RecognizedEntity, bool) {
	path := str(obj, "orgUnitPath")
	if path == "" || str(obj, "name") == "" {
		return RecognizedEntity{}, false
	}
	id := str(obj, "orgUnitId")
	if id == "" {
		id = path
	}
	return RecognizedEntity{Type: domain.EntityOrgUnit, UpstreamID: id, Attributes: obj}, true
}

func recognizeGroup(obj map[string]any) (RecognizedEntity, bool) {
	id := str(obj, "id")
	if id == "" || str(obj, "email") == "" || str(obj, "name") == "" {
		return RecognizedEntity{}, false
	}
	return RecognizedEntity{Type: domain.EntityGroup, UpstreamID: id, Attributes: obj}, true
}

func recognizeMembership(obj map[string]any) (RecognizedEntity, bool) {
	if str(obj, "role") == "" || str(obj, "type") == "" {
		return RecognizedEntity{}, false
	}
	id := str(obj, "id")
	if id == "" {
		id = str(obj, "email")
	}
	if id == "" {
		return RecognizedEntity{}, false
	}
	return RecognizedEntity{Type: domain.EntityMembership, UpstreamID: id, Attributes: obj}, true
}

func str(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
