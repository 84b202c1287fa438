// Package profile validates and creates profile records and resolves them by
// id. It is the gatekeeper the artifact pipeline consults before accepting an
// upload.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"ocrbox/models"
	"ocrbox/pkg/kvstore"
	"ocrbox/pkg/logger"
)

// requiredKeys is the exact payload shape a profile creation must carry.
var requiredKeys = []string{"name", "age", "city"}

// ValidationError reports the required payload keys a creation request was
// missing, and the present keys whose values had the wrong scalar type.
// Both slices are sorted.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Missing) > 0 && len(e.Invalid) > 0:
		return fmt.Sprintf("missing required keys: %v; invalid values for keys: %v", e.Missing, e.Invalid)
	case len(e.Invalid) > 0:
		return fmt.Sprintf("invalid values for keys: %v", e.Invalid)
	default:
		return fmt.Sprintf("missing required keys: %v", e.Missing)
	}
}

// Manager owns profile creation and lookup against the record store.
type Manager struct {
	store kvstore.RecordStore
	log   *logger.Logger
}

func NewManager(store kvstore.RecordStore, log *logger.Logger) *Manager {
	return &Manager{store: store, log: log.With("component", "profile")}
}

// Create validates the claimed attributes, writes a fresh ProfileRecord and
// returns its generated id. Exactly one store write happens per successful
// call; the id is freshly generated so no read-before-write is needed.
// Validation is exhaustive before any write: key presence and scalar types
// are both checked, and nothing is coerced silently.
func (m *Manager) Create(ctx context.Context, payload map[string]any) (string, error) {
	var missing []string
	for _, k := range requiredKeys {
		if payload == nil {
			missing = append(missing, k)
			continue
		}
		if _, ok := payload[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &ValidationError{Missing: missing}
	}

	var invalid []string
	name, ok := asString(payload["name"])
	if !ok {
		invalid = append(invalid, "name")
	}
	age, ok := asInt(payload["age"])
	if !ok {
		invalid = append(invalid, "age")
	}
	city, ok := asString(payload["city"])
	if !ok {
		invalid = append(invalid, "city")
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return "", &ValidationError{Invalid: invalid}
	}

	rec := models.ProfileRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Age:       age,
		City:      city,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}
	if err := m.store.Set(ctx, models.ProfileKey(rec.ID), raw); err != nil {
		m.log.Error("profile write failed", "id", rec.ID, "err", err)
		return "", err
	}
	m.log.Info("profile created", "id", rec.ID)
	return rec.ID, nil
}

// Get resolves a caller-supplied profile id. Unknown ids surface
// kvstore.ErrNotFound; store outages surface kvstore.ErrStore, and the two
// are never conflated.
func (m *Manager) Get(ctx context.Context, id string) (*models.ProfileRecord, error) {
	raw, err := m.store.Get(ctx, models.ProfileKey(id))
	if err != nil {
		return nil, err
	}
	var rec models.ProfileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return &rec, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asInt accepts the numeric shapes JSON decoding produces for age. Anything
// that is not an integral number is rejected rather than coerced.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
