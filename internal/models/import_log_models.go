package models

import "time"

// Source is the point-of-sale platform a row came from.
type Source string

const (
	SourceSquare  Source = "square"
	SourceShopify Source = "shopify"
)

func (s Source) Valid() bool {
	return s == SourceSquare || s == SourceShopify
}

const (
	RunTypeDryRun = "dry_run"
	RunTypeLive   = "live"
)

const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// ImportLog records one import run.
type ImportLog struct {
	ID                int64      `json:"id" db:"id"`
	RunID             string     `json:"run_id" db:"run_id"`
	Source            Source     `json:"source" db:"source"`
	RunType           string     `json:"run_type" db:"run_type"`
	Status            string     `json:"status" db:"status"`
	RowsProcessed     int        `json:"rows_processed" db:"rows_processed"`
	Created           int        `json:"created" db:"created"`
	Updated           int        `json:"updated" db:"updated"`
	Skipped           int        `json:"skipped" db:"skipped"`
	Unmapped          int        `json:"unmapped" db:"unmapped"`
	Errors            int        `json:"errors" db:"errors"`
	ModifiersUnmapped int        `json:"modifiers_unmapped" db:"modifiers_unmapped"`
	Summary           string     `json:"summary" db:"summary"`
	ArtifactRef       *string    `json:"artifact_ref,omitempty" db:"artifact_ref"`
	Error             *string    `json:"error,omitempty" db:"error"`
	StartedAt         time.Time  `json:"started_at" db:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// ImportLogFilters defines the available filters for listing import runs.
type ImportLogFilters struct {
	Source   *string `form:"source"`
	RunType  *string `form:"run_type"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}
