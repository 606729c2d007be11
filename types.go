package onesid

import "time"

// EngineConfig configures the OneSid reconciliation engine.
type EngineConfig struct {
	DBPath string
}

// ViewState is a user's private lifecycle position for a tracked process.
type ViewState string

const (
	// ViewMonitoring: on the scrape queue, awaiting relevant conclusions.
	ViewMonitoring ViewState = "monitoring"
	// ViewPendingAck: every relevant item concluded; waiting for the user
	// to take notice.
	ViewPendingAck ViewState = "pending_ack"
	// ViewArchived: acknowledged and moved to history. Terminal except for
	// re-association.
	ViewArchived ViewState = "archived"
)

// Process identifies one litigation case. The number is stored digits-only
// so differently punctuated spellings of the same case collide.
type Process struct {
	ID                 int64      `json:"id"`
	Number             string     `json:"numero_processo"`
	PrimaryResponsible string     `json:"responsavel_principal"`
	Classification     string     `json:"classificacao,omitempty"`
	CreatedAt          time.Time  `json:"data_cadastro"`
	LastUpdatedAt      *time.Time `json:"data_ultima_atualizacao,omitempty"`
}

// Subsidy is one checklist item with its portal status. A process is
// "concluded" for an item when the status case-folds to
// "concluído"/"concluido"; anything else means not concluded.
type Subsidy struct {
	Item   string `json:"item"`
	Status string `json:"status"`
}

// PanelEntry is a process annotated with the requesting user's view state
// and the full current subsidy list.
type PanelEntry struct {
	Process
	ViewState ViewState `json:"status_visualizacao"`
	Subsidies []Subsidy `json:"subsidios"`
}

// RelevantItem is an admin-curated catalog entry users may opt into.
type RelevantItem struct {
	ID   int64  `json:"id"`
	Name string `json:"item_nome"`
}

// ItemPreference is a catalog item joined with one user's enable flag.
type ItemPreference struct {
	ItemID  int64  `json:"id"`
	Name    string `json:"item_nome"`
	Enabled bool   `json:"is_enabled"`
}

// User is a registered panel account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ImportedTask is one completed task from the upstream case-management
// system, carrying the process it refers to.
type ImportedTask struct {
	ID            int64  `json:"id"`
	ProcessNumber string `json:"processo_cnj"`
	CompletedBy   string `json:"finalizado_por_nome"`
}

// ImportResult summarizes a batch import: duplicates are skipped, never
// fatal, so callers report counts rather than a pass/fail verdict.
type ImportResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// ReconcileResult summarizes one snapshot merge.
type ReconcileResult struct {
	ProcessNumber string  `json:"numero_processo"`
	Known         bool    `json:"known"`
	Subsidies     int     `json:"subsidios"`
	Promoted      []int64 `json:"promoted_user_ids,omitempty"`
}
