package repositories

import (
	"database/sql"
	"fmt"
	"strings"

	"cafe_inventory/internal/models"
)

// ImportLogRepository records import runs. Logs are append-only.
type ImportLogRepository interface {
	Create(executor SQLExecutor, entry *models.ImportLog) (int64, error)
	List(filters models.ImportLogFilters) ([]models.ImportLog, int, error)
}

type importLogRepository struct {
	db *sql.DB
}

func NewImportLogRepository(db *sql.DB) ImportLogRepository {
	return &importLogRepository{db: db}
}

func (r *importLogRepository) Create(executor SQLExecutor, entry *models.ImportLog) (int64, error) {
	query := `INSERT INTO import_logs
	            (run_id, source, run_type, status, rows_processed, created, updated, skipped, unmapped, errors,
	             modifiers_unmapped, summary, artifact_ref, error, started_at, finished_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	          RETURNING id`
	err := executor.QueryRow(query,
		entry.RunID, entry.Source, entry.RunType, entry.Status, entry.RowsProcessed, entry.Created, entry.Updated,
		entry.Skipped, entry.Unmapped, entry.Errors, entry.ModifiersUnmapped, entry.Summary, entry.ArtifactRef,
		entry.Error, entry.StartedAt, entry.FinishedAt,
	).Scan(&entry.ID)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return 0, fmt.Errorf("%w: import run %s already logged", ErrDuplicateKey, entry.RunID)
		}
		return 0, fmt.Errorf("%w: creating import log: %v", ErrDatabaseError, err)
	}
	return entry.ID, nil
}

func (r *importLogRepository) List(filters models.ImportLogFilters) ([]models.ImportLog, int, error) {
	logs := []models.ImportLog{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
        SELECT id, run_id, source, run_type, status, rows_processed, created, updated, skipped, unmapped, errors,
               modifiers_unmapped, summary, artifact_ref, error, started_at, finished_at,
               COUNT(*) OVER() AS total_count
        FROM import_logs`)

	var conditions []string
	var args []interface{}
	argCounter := 1

	if filters.Source != nil && *filters.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argCounter))
		args = append(args, *filters.Source)
		argCounter++
	}
	if filters.RunType != nil && *filters.RunType != "" {
		conditions = append(conditions, fmt.Sprintf("run_type = $%d", argCounter))
		args = append(args, *filters.RunType)
		argCounter++
	}
	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY started_at DESC")
	if filters.PageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCounter, argCounter+1))
		args = append(args, filters.PageSize, pageOffset(filters.Page, filters.PageSize))
	}

	rows, err := r.db.Query(queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying import logs: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.ImportLog
		if err := rows.Scan(
			&l.ID, &l.RunID, &l.Source, &l.RunType, &l.Status, &l.RowsProcessed, &l.Created, &l.Updated, &l.Skipped,
			&l.Unmapped, &l.Errors, &l.ModifiersUnmapped, &l.Summary, &l.ArtifactRef, &l.Error, &l.StartedAt, &l.FinishedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning import log: %v", ErrDatabaseError, err)
		}
		logs = append(logs, l)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating import logs: %v", ErrDatabaseError, err)
	}
	return logs, totalCount, nil
}
