package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	onesid "github.com/MDR-Advocacia/OneSid"
	"github.com/MDR-Advocacia/OneSid/internal/export"
	"github.com/MDR-Advocacia/OneSid/internal/legalone"
	"github.com/MDR-Advocacia/OneSid/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the monitoring and import/export cycles on a schedule",
		Long: `Runs two scheduled jobs: a monitoring cycle that scrapes every pending
process and reconciles the returned snapshots, and an import/export cycle
that pulls completed tasks from Legal One and posts concluded processes to
the task API. The import/export cycle only runs inside business hours.
Handles SIGINT/SIGTERM for graceful shutdown (finishes the current cycle).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			d := &daemon{
				engine:   engine,
				cfg:      cfg,
				client:   &http.Client{Timeout: 2 * time.Minute},
				legalone: legalone.NewClient(cfg.LegalOne),
				exporter: export.NewExporter(engine.Store(), cfg),
			}

			c := cron.New()
			if _, err := c.AddFunc(cfg.Schedule.MonitorSpec, func() { d.monitorCycle(ctx) }); err != nil {
				return fmt.Errorf("invalid monitor schedule %q: %w", cfg.Schedule.MonitorSpec, err)
			}
			if _, err := c.AddFunc(cfg.Schedule.ImportSpec, func() { d.importExportCycle(ctx) }); err != nil {
				return fmt.Errorf("invalid import schedule %q: %w", cfg.Schedule.ImportSpec, err)
			}

			log.Printf("onesid daemon: starting (monitor %q, import/export %q)",
				cfg.Schedule.MonitorSpec, cfg.Schedule.ImportSpec)
			c.Start()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig

			log.Println("onesid daemon: received shutdown signal, finishing running jobs")
			cancel()
			<-c.Stop().Done()
			log.Println("onesid daemon: stopped")
			return nil
		},
	}
}

type daemon struct {
	engine   *onesid.Engine
	cfg      *storage.Config
	client   *http.Client
	legalone *legalone.Client
	exporter *export.Exporter
}

// monitorCycle resolves the pending-scrape queue, asks the scraper for a
// fresh snapshot of each process and reconciles whatever comes back. A
// process whose scrape fails is skipped and retried on the next cycle.
func (d *daemon) monitorCycle(ctx context.Context) {
	start := time.Now()
	numbers, err := d.engine.ProcessesPendingScrape()
	if err != nil {
		log.Printf("onesid daemon: failed to list pending processes: %v", err)
		return
	}
	if len(numbers) == 0 {
		log.Println("onesid daemon: monitor cycle: nothing to scrape")
		return
	}

	log.Printf("onesid daemon: monitor cycle: %d processes to scrape", len(numbers))
	reconciled := 0
	for _, number := range numbers {
		if ctx.Err() != nil {
			log.Println("onesid daemon: monitor cycle interrupted")
			return
		}

		subs, err := d.scrape(ctx, number)
		if err != nil {
			log.Printf("onesid daemon: scrape failed for %s: %v", number, err)
			continue
		}

		result, err := d.engine.Reconcile(number, subs)
		if err != nil {
			log.Printf("onesid daemon: reconcile failed for %s: %v", number, err)
			continue
		}
		if len(result.Promoted) > 0 {
			log.Printf("onesid daemon: process %s concluded for %d user(s)", number, len(result.Promoted))
		}
		reconciled++
	}

	log.Printf("onesid daemon: monitor cycle: reconciled %d/%d in %s",
		reconciled, len(numbers), time.Since(start).Round(time.Millisecond))
}

type scrapeResponse struct {
	Subsidies []onesid.Subsidy `json:"subsidios"`
}

// scrape asks the scraper webhook for the current subsidy snapshot of one
// process.
func (d *daemon) scrape(ctx context.Context, number string) ([]onesid.Subsidy, error) {
	payload, err := json.Marshal(map[string]string{"numero_processo": number})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Scraper.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call scraper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scraper returned status %d: %s", resp.StatusCode, body)
	}

	var out scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode scraper response: %w", err)
	}
	return out.Subsidies, nil
}

// importExportCycle imports completed Legal One tasks and posts concluded
// processes to the task API. Skipped outside business hours.
func (d *daemon) importExportCycle(ctx context.Context) {
	hour := time.Now().Hour()
	if hour < d.cfg.Schedule.BusinessFrom || hour >= d.cfg.Schedule.BusinessTo {
		log.Printf("onesid daemon: import/export skipped outside business hours (%02d:00)", hour)
		return
	}

	fetched, err := d.legalone.FetchCompletedTasks(ctx)
	if err != nil {
		log.Printf("onesid daemon: task import failed: %v", err)
	} else if len(fetched) > 0 {
		tasks := make([]onesid.ImportedTask, 0, len(fetched))
		for _, t := range fetched {
			tasks = append(tasks, onesid.ImportedTask{
				ID:            t.ID,
				ProcessNumber: t.ProcessNumber,
				CompletedBy:   t.CompletedBy,
			})
		}
		result, err := d.engine.ImportTasks(d.cfg.Schedule.ImportUserID, tasks)
		if err != nil {
			log.Printf("onesid daemon: task import failed: %v", err)
		} else {
			log.Printf("onesid daemon: imported %d processes (%d skipped)", result.Created, result.Skipped)
		}
	}

	if _, err := d.exporter.Run(ctx); err != nil {
		log.Printf("onesid daemon: export failed: %v", err)
	}
}
