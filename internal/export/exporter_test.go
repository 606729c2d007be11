package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MDR-Advocacia/OneSid/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedProcess(t *testing.T, store *storage.Store, number string, subs []storage.SubsidyInput) {
	t.Helper()
	uid, err := store.CreateUser("alice", "secret", storage.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, _, err := store.AssociateProcess(uid, number, "Alice", nil); err != nil {
		t.Fatalf("AssociateProcess: %v", err)
	}
	never := func(int64, []string) bool { return false }
	if _, err := store.ReconcileSnapshot(number, subs, never); err != nil {
		t.Fatalf("ReconcileSnapshot: %v", err)
	}
}

func testConfig(apiURL string) *storage.Config {
	cfg := storage.DefaultConfig()
	cfg.Export.APIURL = apiURL
	return cfg
}

func TestRunPostsConcludedProcesses(t *testing.T) {
	store := newTestStore(t)
	seedProcess(t, store, "1234567-89.2024.1.01.0001", []storage.SubsidyInput{
		{Item: "Citação", Status: "Concluído"},
		{Item: "Despacho", Status: "Pendente"},
	})

	var got batchPayload
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	exporter := NewExporter(store, testConfig(srv.URL))
	n, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 1 {
		t.Fatalf("exported %d processes, want 1", n)
	}

	if got.Source != "Onesid" {
		t.Errorf("fonte = %q", got.Source)
	}
	if len(got.Processes) != 1 {
		t.Fatalf("processos = %+v", got.Processes)
	}
	p := got.Processes[0]
	if p.Number != "12345678920241010001" {
		t.Errorf("numero_processo = %q", p.Number)
	}
	// Every subsidy appears as an observation, concluded or not, with
	// the status upper-cased.
	if !strings.Contains(p.Observation, "PROATIVO: Citação (CONCLUÍDO).") ||
		!strings.Contains(p.Observation, "PROATIVO: Despacho (PENDENTE).") {
		t.Errorf("observacao = %q", p.Observation)
	}

	// Identical content must not be re-posted.
	n, err = exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n != 0 {
		t.Errorf("second run exported %d, want 0", n)
	}
	if posts.Load() != 1 {
		t.Errorf("API hit %d times, want 1", posts.Load())
	}
}

func TestRunReexportsChangedContent(t *testing.T) {
	store := newTestStore(t)
	seedProcess(t, store, "1234567-89.2024.1.01.0001", []storage.SubsidyInput{
		{Item: "Citação", Status: "Concluído"},
	})

	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
	}))
	defer srv.Close()

	exporter := NewExporter(store, testConfig(srv.URL))
	if _, err := exporter.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A new snapshot changes the content key, so the process exports again.
	never := func(int64, []string) bool { return false }
	if _, err := store.ReconcileSnapshot("1234567-89.2024.1.01.0001", []storage.SubsidyInput{
		{Item: "Citação", Status: "Concluído"},
		{Item: "Prova Pericial", Status: "Concluído"},
	}, never); err != nil {
		t.Fatalf("ReconcileSnapshot: %v", err)
	}

	n, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n != 1 {
		t.Errorf("exported %d after content change, want 1", n)
	}
	if posts.Load() != 2 {
		t.Errorf("API hit %d times, want 2", posts.Load())
	}
}

func TestRunSkipsPostWhenNothingEligible(t *testing.T) {
	store := newTestStore(t)
	seedProcess(t, store, "1234567-89.2024.1.01.0001", []storage.SubsidyInput{
		{Item: "Citação", Status: "Pendente"},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no post expected without concluded subsidies")
	}))
	defer srv.Close()

	exporter := NewExporter(store, testConfig(srv.URL))
	n, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 0 {
		t.Errorf("exported %d, want 0", n)
	}
}

func TestRunFailedPostLeavesLedgerUntouched(t *testing.T) {
	store := newTestStore(t)
	seedProcess(t, store, "1234567-89.2024.1.01.0001", []storage.SubsidyInput{
		{Item: "Citação", Status: "Concluído"},
	})

	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if posts.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	exporter := NewExporter(store, testConfig(srv.URL))
	if _, err := exporter.Run(context.Background()); err == nil {
		t.Fatal("expected error from failing API")
	}

	// The keys were not recorded, so the next cycle retries the batch.
	n, err := exporter.Run(context.Background())
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if n != 1 {
		t.Errorf("retry exported %d, want 1", n)
	}
}
