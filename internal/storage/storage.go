package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MDR-Advocacia/OneSid/internal/textnorm"
)

// ErrItemNotFound reports a preference write against a catalog item that no
// longer exists, typically after a catalog replace regenerated the ids.
var ErrItemNotFound = errors.New("relevant item not found")

// View states for a (user, process) pair. A process can be monitoring for
// one user and archived for another; view state is never a property of the
// process row itself.
const (
	ViewMonitoring = "monitoring"
	ViewPendingAck = "pending_ack"
	ViewArchived   = "archived"
)

type Store struct {
	db *sql.DB
}

type Process struct {
	ID                 int64
	Number             string
	PrimaryResponsible string
	Classification     string
	TaskID             *int64
	CreatedAt          time.Time
	LastUpdatedAt      *time.Time
}

// Subsidy is the current stored status of one checklist item for a process.
// Ingestion replaces it in place; only the latest observation survives.
type Subsidy struct {
	ProcessNumber string
	Item          string
	Status        string
	UpdatedAt     time.Time
}

// SubsidyInput is one (item, status) pair from a scrape snapshot.
type SubsidyInput struct {
	Item   string
	Status string
}

type RelevantItem struct {
	ID   int64
	Name string
}

// ItemPreference is a catalog item joined with one user's enable flag.
type ItemPreference struct {
	ItemID  int64
	Name    string
	Enabled bool
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// ProcessView is a process annotated with one user's view state.
type ProcessView struct {
	Process
	ViewState string
}

// NewStore opens the database and initializes the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Processes ---

// UpsertProcess creates a process row for the canonicalized number, or
// updates responsible/classification in place when the row already exists.
// The stored number and creation timestamp are never touched by an update.
func (s *Store) UpsertProcess(number, responsible, classification string) (int64, error) {
	clean := textnorm.DigitsOnly(number)
	if clean == "" {
		return 0, fmt.Errorf("process number %q contains no digits", number)
	}
	_, err := s.db.Exec(
		`INSERT INTO processes (number, primary_responsible, classification, last_updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(number) DO UPDATE SET
		   primary_responsible = excluded.primary_responsible,
		   classification = excluded.classification`,
		clean, responsible, classification,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert process %s: %w", clean, err)
	}

	var id int64
	if err := s.db.QueryRow("SELECT id FROM processes WHERE number = ?", clean).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve process %s: %w", clean, err)
	}
	return id, nil
}

// AssociateProcess puts a process on a user's monitoring queue, creating the
// process row if it does not exist yet. Re-associating an archived process
// resets that user's view to monitoring. When taskID is set and another
// process already carries it, the association is skipped (created=false,
// nil error): duplicate upstream tasks must not abort a batch import. A task
// id landing on a process first associated without one is recorded, so the
// same task is skipped on later imports.
func (s *Store) AssociateProcess(userID int64, number, responsible string, taskID *int64) (processID int64, created bool, err error) {
	clean := textnorm.DigitsOnly(number)
	if clean == "" {
		return 0, false, fmt.Errorf("process number %q contains no digits", number)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, false, fmt.Errorf("begin association: %w", err)
	}
	defer tx.Rollback()

	if taskID != nil {
		var exists int
		err := tx.QueryRow("SELECT 1 FROM processes WHERE task_id = ?", *taskID).Scan(&exists)
		if err == nil {
			return 0, false, nil // already imported, skip
		}
		if err != sql.ErrNoRows {
			return 0, false, fmt.Errorf("check task %d: %w", *taskID, err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO processes (number, primary_responsible, task_id, last_updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(number) DO UPDATE SET
		   primary_responsible = excluded.primary_responsible,
		   task_id = COALESCE(processes.task_id, excluded.task_id)`,
		clean, responsible, taskID,
	)
	if err != nil {
		return 0, false, fmt.Errorf("associate process %s: %w", clean, err)
	}

	if err := tx.QueryRow("SELECT id FROM processes WHERE number = ?", clean).Scan(&processID); err != nil {
		return 0, false, fmt.Errorf("resolve process %s: %w", clean, err)
	}

	_, err = tx.Exec(
		`INSERT INTO user_process_views (user_id, process_id, view_state)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, process_id) DO UPDATE SET
		   view_state = excluded.view_state`,
		userID, processID, ViewMonitoring,
	)
	if err != nil {
		return 0, false, fmt.Errorf("set monitoring view: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit association: %w", err)
	}
	return processID, true, nil
}

// GetProcessByNumber returns the process for a (raw or canonical) number,
// or nil when no such process exists.
func (s *Store) GetProcessByNumber(number string) (*Process, error) {
	clean := textnorm.DigitsOnly(number)
	var p Process
	err := s.db.QueryRow(
		`SELECT id, number, COALESCE(primary_responsible, ''), COALESCE(classification, ''),
		        task_id, created_at, last_updated_at
		 FROM processes WHERE number = ?`, clean,
	).Scan(&p.ID, &p.Number, &p.PrimaryResponsible, &p.Classification, &p.TaskID, &p.CreatedAt, &p.LastUpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get process %s: %w", clean, err)
	}
	return &p, nil
}

// --- Subsidies ---

// SubsidiesForProcess returns the current subsidy rows for a process in
// insertion order.
func (s *Store) SubsidiesForProcess(number string) ([]Subsidy, error) {
	clean := textnorm.DigitsOnly(number)
	rows, err := s.db.Query(
		"SELECT process_number, item, status, updated_at FROM subsidies WHERE process_number = ? ORDER BY id",
		clean,
	)
	if err != nil {
		return nil, fmt.Errorf("get subsidies for %s: %w", clean, err)
	}
	defer rows.Close()

	var subs []Subsidy
	for rows.Next() {
		var sub Subsidy
		if err := rows.Scan(&sub.ProcessNumber, &sub.Item, &sub.Status, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subsidy: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// --- Reconciliation ---

// ReconcileSnapshot merges one scraped snapshot into storage as a single
// transaction: upsert every subsidy row, bump the process timestamp, then
// promote monitoring users whose enabled relevant items the callback deems
// satisfied. Users already pending_ack or archived are not touched.
//
// An unknown process number rolls the whole call back and returns (nil, nil):
// a scrape can race with process removal and that is not an error.
func (s *Store) ReconcileSnapshot(number string, subs []SubsidyInput, satisfied func(userID int64, enabledItems []string) bool) ([]int64, error) {
	clean := textnorm.DigitsOnly(number)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin reconcile: %w", err)
	}
	defer tx.Rollback()

	var processID int64
	err = tx.QueryRow("SELECT id FROM processes WHERE number = ?", clean).Scan(&processID)
	if err == sql.ErrNoRows {
		return nil, nil // unknown process, nothing to reconcile
	}
	if err != nil {
		return nil, fmt.Errorf("resolve process %s: %w", clean, err)
	}

	for _, sub := range subs {
		_, err := tx.Exec(
			`INSERT INTO subsidies (process_number, item, status, updated_at)
			 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(process_number, item) DO UPDATE SET
			   status = excluded.status,
			   updated_at = CURRENT_TIMESTAMP`,
			clean, sub.Item, sub.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("upsert subsidy %q: %w", sub.Item, err)
		}
	}

	if _, err := tx.Exec(
		"UPDATE processes SET last_updated_at = CURRENT_TIMESTAMP WHERE id = ?", processID,
	); err != nil {
		return nil, fmt.Errorf("bump process %s: %w", clean, err)
	}

	userRows, err := tx.Query(
		"SELECT user_id FROM user_process_views WHERE process_id = ? AND view_state = ?",
		processID, ViewMonitoring,
	)
	if err != nil {
		return nil, fmt.Errorf("get monitoring users: %w", err)
	}
	var monitoring []int64
	for userRows.Next() {
		var uid int64
		if err := userRows.Scan(&uid); err != nil {
			userRows.Close()
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		monitoring = append(monitoring, uid)
	}
	if err := userRows.Err(); err != nil {
		userRows.Close()
		return nil, err
	}
	userRows.Close()

	var transitioned []int64
	for _, uid := range monitoring {
		enabled, err := enabledItemNamesTx(tx, uid)
		if err != nil {
			return nil, err
		}
		if !satisfied(uid, enabled) {
			continue
		}
		_, err = tx.Exec(
			`UPDATE user_process_views SET view_state = ?
			 WHERE user_id = ? AND process_id = ? AND view_state = ?`,
			ViewPendingAck, uid, processID, ViewMonitoring,
		)
		if err != nil {
			return nil, fmt.Errorf("promote user %d: %w", uid, err)
		}
		transitioned = append(transitioned, uid)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reconcile: %w", err)
	}
	return transitioned, nil
}

// --- View state ---

// SetViewState inserts or replaces the view state for a (user, process) pair.
func (s *Store) SetViewState(userID, processID int64, state string) error {
	_, err := s.db.Exec(
		`INSERT INTO user_process_views (user_id, process_id, view_state)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, process_id) DO UPDATE SET
		   view_state = excluded.view_state`,
		userID, processID, state,
	)
	if err != nil {
		return fmt.Errorf("set view state: %w", err)
	}
	return nil
}

// GetViewState returns the view state for a (user, process) pair, or ""
// when the user has no view row for the process.
func (s *Store) GetViewState(userID, processID int64) (string, error) {
	var state string
	err := s.db.QueryRow(
		"SELECT view_state FROM user_process_views WHERE user_id = ? AND process_id = ?",
		userID, processID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get view state: %w", err)
	}
	return state, nil
}

// AcknowledgeProcess archives a user's pending_ack view of a process.
// Monitoring or already-archived rows are left alone; acknowledging a
// process the user never tracked is a no-op. Returns whether a row moved.
func (s *Store) AcknowledgeProcess(userID int64, number string) (bool, error) {
	clean := textnorm.DigitsOnly(number)
	result, err := s.db.Exec(
		`UPDATE user_process_views SET view_state = ?
		 WHERE user_id = ? AND view_state = ?
		   AND process_id IN (SELECT id FROM processes WHERE number = ?)`,
		ViewArchived, userID, ViewPendingAck, clean,
	)
	if err != nil {
		return false, fmt.Errorf("acknowledge %s: %w", clean, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acknowledge %s: %w", clean, err)
	}
	return n > 0, nil
}

// --- Catalog and preferences ---

// ReplaceCatalog replaces the entire relevant-item catalog with the trimmed,
// deduplicated, non-empty input set, inside one transaction so concurrent
// readers see either the old or the new catalog, never a partial one.
//
// This is the destructive variant: all ids regenerate and per-user
// preference rows for the old ids are cascade-deleted. Users fall back to
// the enabled-by-default backfill on their next preference read.
func (s *Store) ReplaceCatalog(names []string) error {
	seen := make(map[string]bool, len(names))
	var unique []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		unique = append(unique, n)
	}
	sort.Strings(unique)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin catalog replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM relevant_items"); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	for _, name := range unique {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO relevant_items (name) VALUES (?)", name,
		); err != nil {
			return fmt.Errorf("insert catalog item %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog replace: %w", err)
	}
	return nil
}

// RelevantItems lists the full catalog ordered by name.
func (s *Store) RelevantItems() ([]RelevantItem, error) {
	rows, err := s.db.Query("SELECT id, name FROM relevant_items ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	var items []RelevantItem
	for rows.Next() {
		var it RelevantItem
		if err := rows.Scan(&it.ID, &it.Name); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetOrInitPreferences returns every catalog item joined with the user's
// enable flag, backfilling missing preference rows as enabled. The backfill
// is a conditional insert, so duplicate concurrent calls (or a concurrent
// catalog edit) cannot trip the unique constraint.
func (s *Store) GetOrInitPreferences(userID int64) ([]ItemPreference, error) {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO user_item_preferences (user_id, item_id)
		 SELECT ?, id FROM relevant_items`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("backfill preferences for user %d: %w", userID, err)
	}

	rows, err := s.db.Query(
		`SELECT ir.id, ir.name, uip.is_enabled
		 FROM relevant_items ir
		 JOIN user_item_preferences uip ON uip.item_id = ir.id
		 WHERE uip.user_id = ?
		 ORDER BY ir.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get preferences for user %d: %w", userID, err)
	}
	defer rows.Close()

	var prefs []ItemPreference
	for rows.Next() {
		var p ItemPreference
		if err := rows.Scan(&p.ItemID, &p.Name, &p.Enabled); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// SetPreference flips one user's enable flag for a catalog item. The row is
// created when the backfill has not materialized it yet. An unknown item id
// yields ErrItemNotFound.
func (s *Store) SetPreference(userID, itemID int64, enabled bool) error {
	var exists int
	if err := s.db.QueryRow("SELECT 1 FROM relevant_items WHERE id = ?", itemID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return ErrItemNotFound
		}
		return fmt.Errorf("check item %d: %w", itemID, err)
	}

	_, err := s.db.Exec(
		`INSERT INTO user_item_preferences (user_id, item_id, is_enabled)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, item_id) DO UPDATE SET
		   is_enabled = excluded.is_enabled`,
		userID, itemID, enabled,
	)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

// EnabledItemNames returns the catalog item names the user tracks. Items
// without a materialized preference row count as enabled (the default).
func (s *Store) EnabledItemNames(userID int64) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT ir.name FROM relevant_items ir
		 LEFT JOIN user_item_preferences uip
		   ON uip.item_id = ir.id AND uip.user_id = ?
		 WHERE COALESCE(uip.is_enabled, 1) = 1
		 ORDER BY ir.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get enabled items for user %d: %w", userID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan item name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func enabledItemNamesTx(tx *sql.Tx, userID int64) ([]string, error) {
	rows, err := tx.Query(
		`SELECT ir.name FROM relevant_items ir
		 LEFT JOIN user_item_preferences uip
		   ON uip.item_id = ir.id AND uip.user_id = ?
		 WHERE COALESCE(uip.is_enabled, 1) = 1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get enabled items for user %d: %w", userID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan item name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// --- Panel queries ---

// Panel returns the user's active processes (monitoring or pending_ack),
// most recently updated first.
func (s *Store) Panel(userID int64) ([]ProcessView, error) {
	return s.processesByViewState(userID, []string{ViewMonitoring, ViewPendingAck})
}

// History returns the user's archived processes, most recently updated first.
func (s *Store) History(userID int64) ([]ProcessView, error) {
	return s.processesByViewState(userID, []string{ViewArchived})
}

func (s *Store) processesByViewState(userID int64, states []string) ([]ProcessView, error) {
	placeholders := strings.Repeat("?,", len(states))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(states)+1)
	args = append(args, userID)
	for _, st := range states {
		args = append(args, st)
	}

	query := fmt.Sprintf(
		`SELECT p.id, p.number, COALESCE(p.primary_responsible, ''), COALESCE(p.classification, ''),
		        p.task_id, p.created_at, p.last_updated_at, v.view_state
		 FROM processes p
		 JOIN user_process_views v ON v.process_id = p.id
		 WHERE v.user_id = ? AND v.view_state IN (%s)
		 ORDER BY p.last_updated_at DESC`, placeholders)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get panel for user %d: %w", userID, err)
	}
	defer rows.Close()

	var views []ProcessView
	for rows.Next() {
		var pv ProcessView
		if err := rows.Scan(&pv.ID, &pv.Number, &pv.PrimaryResponsible, &pv.Classification,
			&pv.TaskID, &pv.CreatedAt, &pv.LastUpdatedAt, &pv.ViewState); err != nil {
			return nil, fmt.Errorf("scan panel row: %w", err)
		}
		views = append(views, pv)
	}
	return views, rows.Err()
}

// ProcessesPendingScrape returns the distinct process numbers any user is
// still monitoring. This is the scraper's work queue: one scrape of a shared
// process serves every user tracking it.
func (s *Store) ProcessesPendingScrape() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT p.number FROM processes p
		 JOIN user_process_views v ON v.process_id = p.id
		 WHERE v.view_state = ?
		 ORDER BY p.number`,
		ViewMonitoring,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending scrape queue: %w", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan process number: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}
