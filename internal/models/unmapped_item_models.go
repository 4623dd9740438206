package models

import (
	"encoding/json"
	"time"
)

// UnmappedState is the review state of a ledger row.
type UnmappedState string

const (
	StateOpen     UnmappedState = "open"
	StateResolved UnmappedState = "resolved"
	StateIgnored  UnmappedState = "ignored"
)

// UnmappedKey is the identity of a ledger row.
type UnmappedKey struct {
	Source               Source
	ItemType             EntityKind
	NormalizedLabel      string
	NormalizedPricePoint string
}

// UnmappedItem is one deduplicated label the matcher could not resolve.
type UnmappedItem struct {
	ID                   int64           `json:"id" db:"id"`
	Source               Source          `json:"source" db:"source"`
	ItemType             EntityKind      `json:"item_type" db:"item_type"`
	RawLabel             string          `json:"raw_label" db:"raw_label"`
	PricePoint           string          `json:"price_point" db:"price_point"`
	NormalizedLabel      string          `json:"normalized_label" db:"normalized_label"`
	NormalizedPricePoint string          `json:"normalized_price_point" db:"normalized_price_point"`
	LastReason           string          `json:"last_reason" db:"last_reason"`
	LastModifiers        []string        `json:"last_modifiers" db:"last_modifiers"`
	SeenCombos           []string        `json:"seen_combos" db:"seen_combos"`
	OccurrenceCount      int             `json:"occurrence_count" db:"occurrence_count"`
	FirstSeen            time.Time       `json:"first_seen" db:"first_seen"`
	LastSeen             time.Time       `json:"last_seen" db:"last_seen"`
	State                UnmappedState   `json:"state" db:"state"`
	ResolvedTo           *EntityRef      `json:"resolved_to,omitempty"`
	ResolvedBy           *string         `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt           *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	Note                 *string         `json:"note,omitempty" db:"note"`
	LastRawRow           json.RawMessage `json:"last_raw_row,omitempty" db:"last_raw_row"`
}

func (u *UnmappedItem) Key() UnmappedKey {
	return UnmappedKey{
		Source:               u.Source,
		ItemType:             u.ItemType,
		NormalizedLabel:      u.NormalizedLabel,
		NormalizedPricePoint: u.NormalizedPricePoint,
	}
}

// HasCombo reports whether a canonical modifier combination was already captured.
func (u *UnmappedItem) HasCombo(combo string) bool {
	for _, c := range u.SeenCombos {
		if c == combo {
			return true
		}
	}
	return false
}

// UnmappedFilters defines the ledger query surface.
type UnmappedFilters struct {
	Source   *string    `form:"source" json:"source,omitempty"`
	ItemType *string    `form:"item_type" json:"item_type,omitempty"`
	State    *string    `form:"state" json:"state,omitempty"`
	From     *time.Time `form:"from" json:"from,omitempty" time_format:"2006-01-02"`
	To       *time.Time `form:"to" json:"to,omitempty" time_format:"2006-01-02"`
	Search   *string    `form:"q" json:"q,omitempty"`
	IDs      []int64    `form:"-" json:"-"`
	Page     int        `form:"page" json:"-"`
	PageSize int        `form:"page_size" json:"-"`
}
