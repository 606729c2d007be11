// Package onesid tracks litigation processes scraped from the legal portal
// and reconciles each user's private view of them: a process is monitored
// until every relevant item the user tracks shows up concluded in a scrape
// snapshot, then waits for the user's acknowledgement before archiving.
package onesid

import (
	"context"
	"fmt"
	"log"

	"github.com/MDR-Advocacia/OneSid/internal/export"
	"github.com/MDR-Advocacia/OneSid/internal/relevance"
	"github.com/MDR-Advocacia/OneSid/internal/storage"
)

// Engine is the public API for snapshot reconciliation and the per-user
// panel projections. It wraps the SQLite store; all methods are safe to
// call from concurrent goroutines as long as distinct process numbers are
// reconciled (the per-process transaction is the unit of isolation).
type Engine struct {
	store *storage.Store
}

// NewEngine opens the database and returns the engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Engine{store: store}, nil
}

// Store exposes the underlying store for wiring (user admin, web auth).
func (e *Engine) Store() *storage.Store {
	return e.store
}

// Close releases all resources held by the engine.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Reconcile merges one scraped snapshot for one process: upserts every
// (item, status) pair, bumps the process timestamp, and promotes each
// monitoring user whose enabled relevant items are all satisfied by the
// items concluded in this snapshot. Everything commits as one transaction.
//
// An unknown process number is a silent no-op; a scrape may race with the
// process never having been associated, and that is not an error.
// Satisfaction is judged against this snapshot only, not the accumulated
// subsidy rows: an item that regressed or vanished does not count.
func (e *Engine) Reconcile(processNumber string, subs []Subsidy) (*ReconcileResult, error) {
	items := make([]relevance.Item, len(subs))
	inputs := make([]storage.SubsidyInput, len(subs))
	for i, s := range subs {
		items[i] = relevance.Item{Name: s.Item, Status: s.Status}
		inputs[i] = storage.SubsidyInput{Item: s.Item, Status: s.Status}
	}
	concluded := relevance.ConcludedItems(items)

	promoted, err := e.store.ReconcileSnapshot(processNumber, inputs,
		func(userID int64, enabled []string) bool {
			return relevance.AllRelevantSatisfied(enabled, concluded)
		})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", processNumber, err)
	}

	result := &ReconcileResult{
		ProcessNumber: processNumber,
		Subsidies:     len(subs),
		Promoted:      promoted,
	}
	p, err := e.store.GetProcessByNumber(processNumber)
	if err != nil {
		return nil, fmt.Errorf("resolve process %s: %w", processNumber, err)
	}
	result.Known = p != nil
	if len(promoted) > 0 {
		log.Printf("onesid: process %s satisfied relevant items for %d user(s)", processNumber, len(promoted))
	}
	return result, nil
}

// AssociateProcess puts a process on the user's monitoring queue, creating
// the shared process row on first association. Re-associating an archived
// process brings it back to monitoring.
func (e *Engine) AssociateProcess(userID int64, number, responsible string) (int64, error) {
	pid, _, err := e.store.AssociateProcess(userID, number, responsible, nil)
	if err != nil {
		return 0, fmt.Errorf("associate process: %w", err)
	}
	return pid, nil
}

// ImportTasks associates a batch of upstream tasks for a user. A duplicate
// task id (or unusable process number) is counted as skipped; one bad row
// never aborts the batch.
func (e *Engine) ImportTasks(userID int64, tasks []ImportedTask) (*ImportResult, error) {
	result := &ImportResult{}
	for _, task := range tasks {
		if task.ProcessNumber == "" {
			result.Skipped++
			continue
		}
		taskID := task.ID
		_, created, err := e.store.AssociateProcess(userID, task.ProcessNumber, task.CompletedBy, &taskID)
		if err != nil {
			log.Printf("onesid: import of task %d failed: %v", task.ID, err)
			result.Skipped++
			continue
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

// Acknowledge archives the user's pending_ack view of a process. Views that
// are still monitoring, already archived, or absent are untouched.
func (e *Engine) Acknowledge(userID int64, processNumber string) (bool, error) {
	return e.store.AcknowledgeProcess(userID, processNumber)
}

// Panel returns the user's active processes (monitoring and pending_ack),
// newest activity first, each with its full current subsidy list.
func (e *Engine) Panel(userID int64) ([]PanelEntry, error) {
	views, err := e.store.Panel(userID)
	if err != nil {
		return nil, err
	}
	return e.attachSubsidies(views)
}

// History returns the user's archived processes, newest activity first.
func (e *Engine) History(userID int64) ([]PanelEntry, error) {
	views, err := e.store.History(userID)
	if err != nil {
		return nil, err
	}
	return e.attachSubsidies(views)
}

func (e *Engine) attachSubsidies(views []storage.ProcessView) ([]PanelEntry, error) {
	entries := make([]PanelEntry, 0, len(views))
	for _, v := range views {
		subs, err := e.store.SubsidiesForProcess(v.Number)
		if err != nil {
			return nil, err
		}
		entry := PanelEntry{
			Process:   processFromInternal(v.Process),
			ViewState: ViewState(v.ViewState),
			Subsidies: make([]Subsidy, len(subs)),
		}
		for i, s := range subs {
			entry.Subsidies[i] = Subsidy{Item: s.Item, Status: s.Status}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ProcessesPendingScrape returns the distinct process numbers any user is
// monitoring, the scraper's work queue. Scraping is global: one visit to a
// shared process serves every user tracking it.
func (e *Engine) ProcessesPendingScrape() ([]string, error) {
	return e.store.ProcessesPendingScrape()
}

// Catalog lists the relevant-item catalog.
func (e *Engine) Catalog() ([]RelevantItem, error) {
	items, err := e.store.RelevantItems()
	if err != nil {
		return nil, err
	}
	out := make([]RelevantItem, len(items))
	for i, it := range items {
		out[i] = RelevantItem{ID: it.ID, Name: it.Name}
	}
	return out, nil
}

// ReplaceCatalog replaces the whole catalog with the deduplicated, trimmed,
// non-empty input set. Destructive: item ids regenerate and users' existing
// enable flags reset to the enabled default.
func (e *Engine) ReplaceCatalog(names []string) error {
	return e.store.ReplaceCatalog(names)
}

// Preferences returns the catalog joined with the user's enable flags,
// lazily materializing missing rows as enabled.
func (e *Engine) Preferences(userID int64) ([]ItemPreference, error) {
	prefs, err := e.store.GetOrInitPreferences(userID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemPreference, len(prefs))
	for i, p := range prefs {
		out[i] = ItemPreference{ItemID: p.ItemID, Name: p.Name, Enabled: p.Enabled}
	}
	return out, nil
}

// SetPreference flips one enable flag for the user.
func (e *Engine) SetPreference(userID, itemID int64, enabled bool) error {
	return e.store.SetPreference(userID, itemID, enabled)
}

// ExportConcluded posts newly concluded processes to the downstream task
// API and returns how many were sent.
func (e *Engine) ExportConcluded(ctx context.Context, cfg *storage.Config) (int, error) {
	return export.NewExporter(e.store, cfg).Run(ctx)
}

// --- internal type conversion helpers ---

func processFromInternal(p storage.Process) Process {
	return Process{
		ID:                 p.ID,
		Number:             p.Number,
		PrimaryResponsible: p.PrimaryResponsible,
		Classification:     p.Classification,
		CreatedAt:          p.CreatedAt,
		LastUpdatedAt:      p.LastUpdatedAt,
	}
}
