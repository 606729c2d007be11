package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	onesid "github.com/MDR-Advocacia/OneSid"
	"github.com/MDR-Advocacia/OneSid/internal/legalone"
	"github.com/MDR-Advocacia/OneSid/internal/output"
	"github.com/MDR-Advocacia/OneSid/internal/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configPath   string
	cfg          *storage.Config
	outputFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "onesid",
		Short: "Litigation fulfillment tracker - monitors case subsidies and flags concluded work",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")

	rootCmd.AddCommand(initDBCmd())
	rootCmd.AddCommand(addUserCmd())
	rootCmd.AddCommand(associateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(panelCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(ackCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	// Check if config exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Use default config
		cfg = storage.DefaultConfig()
		return nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	cfg = storage.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

func openEngine() (*onesid.Engine, error) {
	engine, err := onesid.NewEngine(onesid.EngineConfig{DBPath: cfg.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return engine, nil
}

func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			fmt.Printf("Database ready at %s\n", cfg.Database.Path)
			return nil
		},
	}
}

func addUserCmd() *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "add-user <username> <password>",
		Short: "Create a panel account (admin flag promotes an existing one)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			role := storage.RoleUser
			if admin {
				role = storage.RoleAdmin
			}
			id, err := engine.Store().CreateUser(args[0], args[1], role)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			fmt.Printf("User %s ready (id %d, role %s)\n", args[0], id, role)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	return cmd
}

func associateCmd() *cobra.Command {
	var userID int64
	var responsible string
	cmd := &cobra.Command{
		Use:   "associate <process-number>",
		Short: "Put a process on a user's monitoring panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			id, err := engine.AssociateProcess(userID, args[0], responsible)
			if err != nil {
				return fmt.Errorf("failed to associate process: %w", err)
			}

			fmt.Printf("Process %s on the monitoring panel (id %d)\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 1, "user ID to associate the process with")
	cmd.Flags().StringVarP(&responsible, "responsible", "r", "", "primary responsible name")
	return cmd
}

func importCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import completed tasks from Legal One onto a user's panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			client := legalone.NewClient(cfg.LegalOne)
			fetched, err := client.FetchCompletedTasks(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch tasks: %w", err)
			}

			tasks := make([]onesid.ImportedTask, 0, len(fetched))
			for _, t := range fetched {
				tasks = append(tasks, onesid.ImportedTask{
					ID:            t.ID,
					ProcessNumber: t.ProcessNumber,
					CompletedBy:   t.CompletedBy,
				})
			}

			result, err := engine.ImportTasks(userID, tasks)
			if err != nil {
				return err
			}
			return formatter.OutputImportResult(result)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 1, "user ID to receive the imported processes")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <process-number> [snapshot-file]",
		Short: "Apply a scraped subsidy snapshot (JSON array; stdin when no file)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			var data []byte
			var err error
			if len(args) == 2 && args[1] != "-" {
				data, err = os.ReadFile(args[1])
			} else {
				data, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}

			var subs []onesid.Subsidy
			if err := json.Unmarshal(data, &subs); err != nil {
				return fmt.Errorf("failed to parse snapshot: %w", err)
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Reconcile(args[0], subs)
			if err != nil {
				return err
			}
			return formatter.OutputReconcileResult(result)
		},
	}
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List process numbers waiting for a fresh scrape",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			numbers, err := engine.ProcessesPendingScrape()
			if err != nil {
				return err
			}
			return formatter.OutputPendingList(numbers)
		},
	}
}

func panelCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "panel",
		Short: "Show a user's active panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			entries, err := engine.Panel(userID)
			if err != nil {
				return err
			}
			return formatter.OutputPanel(entries)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 1, "user ID")
	return cmd
}

func historyCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a user's archived processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			entries, err := engine.History(userID)
			if err != nil {
				return err
			}
			return formatter.OutputPanel(entries)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 1, "user ID")
	return cmd
}

func ackCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "ack <process-number>",
		Short: "Acknowledge a concluded process and archive it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			moved, err := engine.Acknowledge(userID, args[0])
			if err != nil {
				return err
			}
			if !moved {
				return fmt.Errorf("process %s is not awaiting acknowledgment for user %d", args[0], userID)
			}

			fmt.Printf("Process %s archived\n", args[0])
			return nil
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 1, "user ID")
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the relevant-item catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the relevant items",
		RunE: func(c *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			items, err := engine.Catalog()
			if err != nil {
				return err
			}
			return formatter.OutputCatalog(items)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <item>...",
		Short: "Replace the whole catalog with the given items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.ReplaceCatalog(args); err != nil {
				return err
			}

			fmt.Printf("Catalog replaced with %d items\n", len(args))
			return nil
		},
	})

	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Post concluded processes to the downstream task API",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			posted, err := engine.ExportConcluded(context.Background(), cfg)
			if err != nil {
				return err
			}
			return formatter.OutputExportResult(posted)
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = "./config/config.yaml"
			}

			// Create config directory
			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			// Check if config already exists
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			// Write default config
			data, err := yaml.Marshal(storage.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}
