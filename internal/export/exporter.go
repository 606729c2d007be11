// Package export pushes concluded fulfillment data to the downstream
// task API, deduplicating by content so unchanged processes are only
// sent once.
package export

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/MDR-Advocacia/OneSid/internal/storage"
)

// ProcessExport is one process in the outbound batch.
type ProcessExport struct {
	Number      string `json:"numero_processo"`
	Responsible string `json:"responsavel_principal"`
	Observation string `json:"observacao"`
}

type batchPayload struct {
	Source    string          `json:"fonte"`
	Processes []ProcessExport `json:"processos"`
}

// Exporter collects exportable processes and posts them as a batch.
type Exporter struct {
	store  *storage.Store
	client *http.Client
	apiURL string
	source string
}

func NewExporter(store *storage.Store, cfg *storage.Config) *Exporter {
	return &Exporter{
		store:  store,
		client: &http.Client{Timeout: 30 * time.Second},
		apiURL: cfg.Export.APIURL,
		source: cfg.Export.Source,
	}
}

// BuildBatch assembles the processes whose concluded-subsidy content has
// not been exported yet. The returned keys identify the batch entries in
// the export ledger and must be recorded only after a successful post.
func (e *Exporter) BuildBatch() ([]ProcessExport, []string, error) {
	candidates, err := e.store.EligibleForExport()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to collect export candidates: %w", err)
	}

	var batch []ProcessExport
	var keys []string
	for _, c := range candidates {
		subs, err := e.store.SubsidiesForProcess(c.Number)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load subsidies for %s: %w", c.Number, err)
		}

		observations := make([]string, 0, len(subs))
		for _, s := range subs {
			observations = append(observations,
				fmt.Sprintf("PROATIVO: %s (%s).", s.Item, strings.ToUpper(s.Status)))
		}
		sort.Strings(observations)
		observation := strings.Join(observations, " ; ")

		key := fmt.Sprintf("%s-%s-%x", c.Number, c.PrimaryResponsible, md5.Sum([]byte(observation)))
		exported, err := e.store.WasExported(key)
		if err != nil {
			return nil, nil, err
		}
		if exported {
			continue
		}

		batch = append(batch, ProcessExport{
			Number:      c.Number,
			Responsible: c.PrimaryResponsible,
			Observation: observation,
		})
		keys = append(keys, key)
	}

	return batch, keys, nil
}

// Run builds the batch and posts it. An empty batch posts nothing and is
// not an error. Keys are recorded in the ledger only after the API
// accepts the batch, so a failed post is retried on the next cycle.
func (e *Exporter) Run(ctx context.Context) (int, error) {
	batch, keys, err := e.BuildBatch()
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		log.Println("export: nothing new to export")
		return 0, nil
	}

	if err := e.post(ctx, batchPayload{Source: e.source, Processes: batch}); err != nil {
		return 0, err
	}
	if err := e.store.RecordExports(keys); err != nil {
		return 0, fmt.Errorf("failed to record export keys: %w", err)
	}

	log.Printf("export: posted %d processes", len(batch))
	return len(batch), nil
}

func (e *Exporter) post(ctx context.Context, payload batchPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode export payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post export batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("export API returned status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
