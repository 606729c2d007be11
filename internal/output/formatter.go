package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	onesid "github.com/MDR-Advocacia/OneSid"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputReconcileResult outputs the outcome of one snapshot reconciliation
func (f *Formatter) OutputReconcileResult(result *onesid.ReconcileResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "process=%s\tknown=%t\tsubsidies=%d\tpromoted=%d\n",
			result.ProcessNumber, result.Known, result.Subsidies, len(result.Promoted))
		return nil
	case FormatHuman:
		if !result.Known {
			fmt.Fprintf(f.out, "Process %s is not tracked, snapshot discarded\n", result.ProcessNumber)
			return nil
		}
		fmt.Fprintf(f.out, "Reconciled %s: %d subsidies in snapshot\n", result.ProcessNumber, result.Subsidies)
		if len(result.Promoted) > 0 {
			fmt.Fprintf(f.out, "🔔 %d user(s) now have this process awaiting acknowledgment\n", len(result.Promoted))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputImportResult outputs the outcome of a task import run
func (f *Formatter) OutputImportResult(result *onesid.ImportResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "created=%d\tskipped=%d\n", result.Created, result.Skipped)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Imported %d new processes", result.Created)
		if result.Skipped > 0 {
			fmt.Fprintf(f.out, " (%d skipped)", result.Skipped)
		}
		fmt.Fprintln(f.out)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputPanel outputs a user's panel or history entries
func (f *Formatter) OutputPanel(entries []onesid.PanelEntry) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(entries)
	case FormatText:
		for _, e := range entries {
			fmt.Fprintf(f.out, "number=%s\tstate=%s\tresponsible=%s\tupdated=%s\n",
				e.Number, e.ViewState, e.PrimaryResponsible, formatTime(e.LastUpdatedAt))
			for _, s := range e.Subsidies {
				fmt.Fprintf(f.out, "  item=%s\tstatus=%s\n", s.Item, s.Status)
			}
		}
		return nil
	case FormatHuman:
		if len(entries) == 0 {
			fmt.Fprintln(f.out, "No processes")
			return nil
		}
		fmt.Fprintf(f.out, "Processes (%d):\n\n", len(entries))
		for _, e := range entries {
			fmt.Fprintf(f.out, "Number: %s\n", e.Number)
			fmt.Fprintf(f.out, "State: %s\n", e.ViewState)
			if e.PrimaryResponsible != "" {
				fmt.Fprintf(f.out, "Responsible: %s\n", e.PrimaryResponsible)
			}
			if e.LastUpdatedAt != nil {
				fmt.Fprintf(f.out, "Updated: %s\n", e.LastUpdatedAt.Format("2006-01-02 15:04"))
			}
			for _, s := range e.Subsidies {
				fmt.Fprintf(f.out, "  • %s (%s)\n", s.Item, s.Status)
			}
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputPendingList outputs the numbers waiting for a fresh snapshot
func (f *Formatter) OutputPendingList(numbers []string) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(numbers)
	case FormatText:
		for _, n := range numbers {
			fmt.Fprintln(f.out, n)
		}
		return nil
	case FormatHuman:
		if len(numbers) == 0 {
			fmt.Fprintln(f.out, "No processes pending a scrape")
			return nil
		}
		fmt.Fprintf(f.out, "Pending scrape (%d):\n", len(numbers))
		for _, n := range numbers {
			fmt.Fprintf(f.out, "  %s\n", n)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputCatalog outputs the relevant-item catalog
func (f *Formatter) OutputCatalog(items []onesid.RelevantItem) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(items)
	case FormatText:
		for _, it := range items {
			fmt.Fprintf(f.out, "id=%d\tname=%s\n", it.ID, it.Name)
		}
		return nil
	case FormatHuman:
		if len(items) == 0 {
			fmt.Fprintln(f.out, "Catalog is empty")
			return nil
		}
		fmt.Fprintf(f.out, "Relevant items (%d):\n", len(items))
		for _, it := range items {
			fmt.Fprintf(f.out, "  %d. %s\n", it.ID, it.Name)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputExportResult outputs the outcome of an export cycle
func (f *Formatter) OutputExportResult(posted int) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(map[string]int{"posted": posted})
	case FormatText:
		fmt.Fprintf(f.out, "posted=%d\n", posted)
		return nil
	case FormatHuman:
		if posted == 0 {
			fmt.Fprintln(f.out, "Nothing new to export")
		} else {
			fmt.Fprintf(f.out, "Posted %d processes to the task API\n", posted)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// formatTime formats a time pointer for output
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
