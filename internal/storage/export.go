package storage

import (
	"database/sql"
	"fmt"
)

// ExportCandidate is a process eligible for pushing to the downstream task
// API: it has at least one concluded subsidy and is still on someone's
// active panel.
type ExportCandidate struct {
	Number             string
	PrimaryResponsible string
}

// EligibleForExport returns the distinct processes with a concluded subsidy
// whose view state for any user is monitoring or pending_ack.
func (s *Store) EligibleForExport() ([]ExportCandidate, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT p.number, COALESCE(p.primary_responsible, '')
		 FROM processes p
		 JOIN subsidies sa ON sa.process_number = p.number
		 JOIN user_process_views v ON v.process_id = p.id
		 WHERE v.view_state IN (?, ?)
		   AND (sa.status LIKE 'Concluído' OR sa.status LIKE 'Concluido')
		 ORDER BY p.number`,
		ViewMonitoring, ViewPendingAck,
	)
	if err != nil {
		return nil, fmt.Errorf("get export candidates: %w", err)
	}
	defer rows.Close()

	var out []ExportCandidate
	for rows.Next() {
		var c ExportCandidate
		if err := rows.Scan(&c.Number, &c.PrimaryResponsible); err != nil {
			return nil, fmt.Errorf("scan export candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// WasExported reports whether a content key has already been pushed.
func (s *Store) WasExported(key string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM export_history WHERE export_key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check export key: %w", err)
	}
	return true, nil
}

// RecordExports marks content keys as pushed so identical payloads are not
// re-sent on the next cycle.
func (s *Store) RecordExports(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin export record: %w", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO export_history (export_key) VALUES (?)", k,
		); err != nil {
			return fmt.Errorf("record export key: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export record: %w", err)
	}
	return nil
}
