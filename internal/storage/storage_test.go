package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore(t *testing.T) {
	store := newTestStore(t)
	if store.db == nil {
		t.Fatal("Database connection is nil")
	}
}

func TestUpsertProcessCanonicalizesNumber(t *testing.T) {
	store := newTestStore(t)

	id1, err := store.UpsertProcess("0032782-96.2023.8.03.0001", "Alice", "trabalhista")
	if err != nil {
		t.Fatalf("UpsertProcess failed: %v", err)
	}
	id2, err := store.UpsertProcess("00327829620238030001", "Bob", "cível")
	if err != nil {
		t.Fatalf("UpsertProcess failed: %v", err)
	}

	if id1 != id2 {
		t.Fatalf("differently punctuated numbers resolved to different rows: %d vs %d", id1, id2)
	}

	p, err := store.GetProcessByNumber("0032782-96.2023.8.03.0001")
	if err != nil {
		t.Fatalf("GetProcessByNumber failed: %v", err)
	}
	if p == nil {
		t.Fatal("process not found")
	}
	if p.Number != "00327829620238030001" {
		t.Errorf("stored number: got %q, want digits-only", p.Number)
	}
	if p.PrimaryResponsible != "Bob" {
		t.Errorf("responsible not updated in place: got %q", p.PrimaryResponsible)
	}
}

func TestUpsertProcessRejectsDigitless(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.UpsertProcess("no-digits-here", "", ""); err == nil {
		t.Fatal("expected error for a number with no digits")
	}
}

func TestAssociateProcessSkipsDuplicateTask(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)

	taskID := int64(42)
	_, created, err := store.AssociateProcess(uid, "1111111-11.2024.1.01.0001", "Alice", &taskID)
	if err != nil {
		t.Fatalf("AssociateProcess failed: %v", err)
	}
	if !created {
		t.Fatal("first association should create")
	}

	_, created, err = store.AssociateProcess(uid, "2222222-22.2024.1.01.0002", "Alice", &taskID)
	if err != nil {
		t.Fatalf("duplicate task id must be skipped, not erred: %v", err)
	}
	if created {
		t.Error("duplicate task id should report skipped")
	}
}

func TestAssociateProcessRecordsTaskOnExistingRow(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)

	if _, _, err := store.AssociateProcess(uid, "1111111-11.2024.1.01.0001", "Alice", nil); err != nil {
		t.Fatalf("AssociateProcess failed: %v", err)
	}

	taskID := int64(42)
	_, created, err := store.AssociateProcess(uid, "1111111-11.2024.1.01.0001", "Bob", &taskID)
	if err != nil {
		t.Fatalf("AssociateProcess with task failed: %v", err)
	}
	if !created {
		t.Fatal("first import of the task should create")
	}

	p, err := store.GetProcessByNumber("1111111-11.2024.1.01.0001")
	if err != nil || p == nil {
		t.Fatalf("GetProcessByNumber: %v %v", p, err)
	}
	if p.TaskID == nil || *p.TaskID != taskID {
		t.Fatalf("task id not stored on existing process: %v", p.TaskID)
	}

	_, created, err = store.AssociateProcess(uid, "1111111-11.2024.1.01.0001", "Bob", &taskID)
	if err != nil {
		t.Fatalf("repeat import failed: %v", err)
	}
	if created {
		t.Error("repeat import of the same task should be skipped")
	}
}

func TestAssociateResetsArchivedView(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)

	pid, _, err := store.AssociateProcess(uid, "1234567-89.2024.1.01.0001", "Alice", nil)
	if err != nil {
		t.Fatalf("AssociateProcess failed: %v", err)
	}
	if err := store.SetViewState(uid, pid, ViewArchived); err != nil {
		t.Fatalf("SetViewState failed: %v", err)
	}

	if _, _, err := store.AssociateProcess(uid, "1234567-89.2024.1.01.0001", "Alice", nil); err != nil {
		t.Fatalf("re-association failed: %v", err)
	}
	state, err := store.GetViewState(uid, pid)
	if err != nil {
		t.Fatalf("GetViewState failed: %v", err)
	}
	if state != ViewMonitoring {
		t.Errorf("re-association should reset view to monitoring, got %q", state)
	}
}

func TestReconcileSnapshotUpsertsAndPromotes(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)
	_, _, err := store.AssociateProcess(uid, "1234567-89.2024.1.01.0001", "Alice", nil)
	if err != nil {
		t.Fatalf("AssociateProcess failed: %v", err)
	}

	subs := []SubsidyInput{
		{Item: "Citação", Status: "Concluído"},
		{Item: "Contestação", Status: "Pendente"},
	}
	transitioned, err := store.ReconcileSnapshot("1234567-89.2024.1.01.0001", subs,
		func(userID int64, enabled []string) bool { return true })
	if err != nil {
		t.Fatalf("ReconcileSnapshot failed: %v", err)
	}
	if len(transitioned) != 1 || transitioned[0] != uid {
		t.Fatalf("expected user %d transitioned, got %v", uid, transitioned)
	}

	stored, err := store.SubsidiesForProcess("12345678920241010001")
	if err != nil {
		t.Fatalf("SubsidiesForProcess failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 subsidy rows, got %d", len(stored))
	}

	// A second wave replaces statuses in place, never appends.
	_, err = store.ReconcileSnapshot("1234567-89.2024.1.01.0001",
		[]SubsidyInput{{Item: "Contestação", Status: "Concluído"}},
		func(userID int64, enabled []string) bool { return false })
	if err != nil {
		t.Fatalf("second ReconcileSnapshot failed: %v", err)
	}
	stored, _ = store.SubsidiesForProcess("12345678920241010001")
	if len(stored) != 2 {
		t.Fatalf("upsert appended instead of replacing: %d rows", len(stored))
	}
	for _, sub := range stored {
		if sub.Item == "Contestação" && sub.Status != "Concluído" {
			t.Errorf("status not replaced: got %q", sub.Status)
		}
	}
}

func TestReconcileSnapshotUnknownProcessIsNoop(t *testing.T) {
	store := newTestStore(t)

	transitioned, err := store.ReconcileSnapshot("9999999-99.2024.1.01.0001",
		[]SubsidyInput{{Item: "Citação", Status: "Concluído"}},
		func(userID int64, enabled []string) bool { return true })
	if err != nil {
		t.Fatalf("unknown process must not error: %v", err)
	}
	if transitioned != nil {
		t.Errorf("expected no transitions, got %v", transitioned)
	}

	subs, _ := store.SubsidiesForProcess("99999999920241010001")
	if len(subs) != 0 {
		t.Errorf("subsidies must not persist for an unknown process, got %d rows", len(subs))
	}
}

func TestReconcileSkipsNonMonitoringUsers(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)
	pid, _, _ := store.AssociateProcess(uid, "1234567-89.2024.1.01.0001", "Alice", nil)
	store.SetViewState(uid, pid, ViewArchived)

	transitioned, err := store.ReconcileSnapshot("1234567-89.2024.1.01.0001",
		[]SubsidyInput{{Item: "Citação", Status: "Concluído"}},
		func(userID int64, enabled []string) bool { return true })
	if err != nil {
		t.Fatalf("ReconcileSnapshot failed: %v", err)
	}
	if len(transitioned) != 0 {
		t.Fatalf("archived user must not transition, got %v", transitioned)
	}
	state, _ := store.GetViewState(uid, pid)
	if state != ViewArchived {
		t.Errorf("archived view changed to %q", state)
	}
}

func TestAcknowledgeProcess(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)
	pid, _, _ := store.AssociateProcess(uid, "1234567-89.2024.1.01.0001", "Alice", nil)

	// Monitoring rows are not acknowledgeable.
	moved, err := store.AcknowledgeProcess(uid, "1234567-89.2024.1.01.0001")
	if err != nil {
		t.Fatalf("AcknowledgeProcess failed: %v", err)
	}
	if moved {
		t.Error("monitoring view must not archive on acknowledge")
	}

	store.SetViewState(uid, pid, ViewPendingAck)
	moved, err = store.AcknowledgeProcess(uid, "1234567-89.2024.1.01.0001")
	if err != nil {
		t.Fatalf("AcknowledgeProcess failed: %v", err)
	}
	if !moved {
		t.Fatal("pending_ack view should archive on acknowledge")
	}
	state, _ := store.GetViewState(uid, pid)
	if state != ViewArchived {
		t.Errorf("view state after acknowledge: got %q", state)
	}
}

func TestReplaceCatalogDedup(t *testing.T) {
	store := newTestStore(t)

	if err := store.ReplaceCatalog([]string{"A", "a ", " A", "B", "", "  "}); err != nil {
		t.Fatalf("ReplaceCatalog failed: %v", err)
	}
	items, err := store.RelevantItems()
	if err != nil {
		t.Fatalf("RelevantItems failed: %v", err)
	}
	// Dedup is exact after trimming, case-sensitive: "A" and " A" collapse,
	// "a" stays distinct, empties are dropped.
	want := []string{"A", "B", "a"}
	if len(items) != len(want) {
		t.Fatalf("expected %d catalog items, got %d: %+v", len(want), len(items), items)
	}
	for i, w := range want {
		if items[i].Name != w {
			t.Errorf("catalog[%d] = %q, want %q", i, items[i].Name, w)
		}
	}
}

func TestReplaceCatalogIsDestructive(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)

	store.ReplaceCatalog([]string{"Citação"})
	prefs, _ := store.GetOrInitPreferences(uid)
	if len(prefs) != 1 {
		t.Fatalf("expected 1 preference, got %d", len(prefs))
	}
	store.SetPreference(uid, prefs[0].ItemID, false)

	// Replacing regenerates ids; the old disabled preference is gone and
	// the surviving name defaults back to enabled.
	store.ReplaceCatalog([]string{"Citação", "Contestação"})
	prefs, _ = store.GetOrInitPreferences(uid)
	if len(prefs) != 2 {
		t.Fatalf("expected 2 preferences, got %d", len(prefs))
	}
	for _, p := range prefs {
		if !p.Enabled {
			t.Errorf("preference %q should reset to enabled after catalog replace", p.Name)
		}
	}
}

func TestGetOrInitPreferencesBackfillIdempotent(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)
	store.ReplaceCatalog([]string{"Citação", "Prova Pericial"})

	first, err := store.GetOrInitPreferences(uid)
	if err != nil {
		t.Fatalf("GetOrInitPreferences failed: %v", err)
	}
	second, err := store.GetOrInitPreferences(uid)
	if err != nil {
		t.Fatalf("second GetOrInitPreferences failed: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("backfill not idempotent: %d then %d rows", len(first), len(second))
	}
	for _, p := range first {
		if !p.Enabled {
			t.Errorf("backfilled preference %q should default to enabled", p.Name)
		}
	}
}

func TestEnabledItemNamesRespectsDisable(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)
	store.ReplaceCatalog([]string{"Citação", "Prova Pericial"})

	// Without materialized rows every item counts as enabled.
	names, err := store.EnabledItemNames(uid)
	if err != nil {
		t.Fatalf("EnabledItemNames failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 enabled items by default, got %d", len(names))
	}

	prefs, _ := store.GetOrInitPreferences(uid)
	store.SetPreference(uid, prefs[0].ItemID, false)

	names, _ = store.EnabledItemNames(uid)
	if len(names) != 1 {
		t.Fatalf("expected 1 enabled item after disable, got %d", len(names))
	}
	if names[0] == prefs[0].Name {
		t.Errorf("disabled item %q still reported enabled", prefs[0].Name)
	}
}

func TestSetPreferenceUnknownItem(t *testing.T) {
	store := newTestStore(t)
	uid, _ := store.CreateUser("alice", "secret", RoleUser)

	err := store.SetPreference(uid, 999999, false)
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestPanelHistoryAndPendingScrape(t *testing.T) {
	store := newTestStore(t)
	alice, _ := store.CreateUser("alice", "secret", RoleUser)
	bob, _ := store.CreateUser("bob", "secret", RoleUser)

	p1, _, _ := store.AssociateProcess(alice, "1111111-11.2024.1.01.0001", "Alice", nil)
	store.AssociateProcess(bob, "1111111-11.2024.1.01.0001", "Bob", nil)
	p2, _, _ := store.AssociateProcess(alice, "2222222-22.2024.1.01.0002", "Alice", nil)

	store.SetViewState(alice, p1, ViewPendingAck)
	store.SetViewState(alice, p2, ViewArchived)

	panel, err := store.Panel(alice)
	if err != nil {
		t.Fatalf("Panel failed: %v", err)
	}
	if len(panel) != 1 {
		t.Fatalf("expected 1 panel row for alice, got %d", len(panel))
	}
	if panel[0].ViewState != ViewPendingAck {
		t.Errorf("panel view state: got %q", panel[0].ViewState)
	}

	history, err := store.History(alice)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != p2 {
		t.Fatalf("expected archived process %d in history, got %+v", p2, history)
	}

	// The scrape queue is global: p1 is pending_ack for alice but still
	// monitoring for bob, so it stays queued. p2 is archived and off it.
	pending, err := store.ProcessesPendingScrape()
	if err != nil {
		t.Fatalf("ProcessesPendingScrape failed: %v", err)
	}
	if len(pending) != 1 || pending[0] != "11111111120241010001" {
		t.Fatalf("pending scrape queue: got %v", pending)
	}
}

func TestViewStateIsPerUser(t *testing.T) {
	store := newTestStore(t)
	alice, _ := store.CreateUser("alice", "secret", RoleUser)
	bob, _ := store.CreateUser("bob", "secret", RoleUser)

	pid, _, _ := store.AssociateProcess(alice, "1234567-89.2024.1.01.0001", "Alice", nil)
	store.AssociateProcess(bob, "1234567-89.2024.1.01.0001", "Bob", nil)

	store.SetViewState(alice, pid, ViewArchived)

	aliceState, _ := store.GetViewState(alice, pid)
	bobState, _ := store.GetViewState(bob, pid)
	if aliceState != ViewArchived || bobState != ViewMonitoring {
		t.Errorf("view states leaked between users: alice=%q bob=%q", aliceState, bobState)
	}
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateUser("alice", "s3cret", RoleUser)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if id == 0 {
		t.Fatal("user id should not be 0")
	}

	u, err := store.Authenticate("alice", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if u == nil || u.ID != id {
		t.Fatalf("expected authenticated user %d, got %+v", id, u)
	}

	u, err = store.Authenticate("alice", "wrong")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if u != nil {
		t.Error("wrong password should not authenticate")
	}

	u, _ = store.Authenticate("nobody", "x")
	if u != nil {
		t.Error("unknown user should not authenticate")
	}
}

func TestCreateUserDuplicatePromotesAdmin(t *testing.T) {
	store := newTestStore(t)

	id1, _ := store.CreateUser("alice", "secret", RoleUser)
	id2, err := store.CreateUser("alice", "other", RoleAdmin)
	if err != nil {
		t.Fatalf("duplicate CreateUser must not error: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same row, got %d and %d", id1, id2)
	}

	u, _ := store.GetUserByName("alice")
	if u.Role != RoleAdmin {
		t.Errorf("expected role promoted to admin, got %q", u.Role)
	}
}

func TestExportLedger(t *testing.T) {
	store := newTestStore(t)

	ok, err := store.WasExported("key-1")
	if err != nil {
		t.Fatalf("WasExported failed: %v", err)
	}
	if ok {
		t.Error("fresh key should not be exported")
	}

	if err := store.RecordExports([]string{"key-1", "key-2"}); err != nil {
		t.Fatalf("RecordExports failed: %v", err)
	}
	ok, _ = store.WasExported("key-1")
	if !ok {
		t.Error("recorded key should report exported")
	}

	// Re-recording is idempotent.
	if err := store.RecordExports([]string{"key-1"}); err != nil {
		t.Fatalf("duplicate RecordExports must not error: %v", err)
	}
}
