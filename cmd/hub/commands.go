package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/outbound"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

// ─── check ──────────────────────────────────────────────────────────

// checkResult is the outcome of `hub check`.
type checkResult struct {
	Automation string         `json:"automation"`
	Registered []rule.Channel `json:"registered"`
	Subscribed []rule.Channel `json:"subscribed"`
	Connected  []rule.Channel `json:"connected"`
	Devices    bool           `json:"devices_checked"`
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	var (
		format      string
		withDevices bool
	)

	cmd := &cobra.Command{
		Use:   "check <automation>",
		Short: "Parse an automation and print its channel sets",
		Long: `Parse an automation such as

  hub check 'outlet:power > 100 --> lamp:on = 1'

and print its canonical form plus the channels it registers, subscribes
to and connects. With --devices the channels are also resolved against
the static devices of the configuration file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", format)
			}

			var devices []config.DeviceConfig
			if withDevices {
				cfg, err := config.Load(opts.resolveConfigPath())
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				devices = cfg.Devices
			}

			result, err := checkAutomation(args[0], devices, withDevices)
			if err != nil {
				return err
			}
			return writeCheckResult(cmd.OutOrStdout(), result, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format (json|text)")
	cmd.Flags().BoolVar(&withDevices, "devices", false, "resolve channels against the configured devices")

	return cmd
}

// checkAutomation parses text and, when resolve is set, adds it to a
// throwaway store holding devices so unregistered channels are reported.
func checkAutomation(text string, devices []config.DeviceConfig, resolve bool) (checkResult, error) {
	stmt, err := rule.Parse(text)
	if err != nil {
		return checkResult{}, err
	}

	if resolve {
		registry := device.NewRegistry()
		if err := registerStaticDevices(registry, devices); err != nil {
			return checkResult{}, err
		}
		// Nothing is sent: the store only validates and evaluates.
		discard := outbound.RequesterFunc(func(context.Context, device.Request) error { return nil })
		store := automation.NewStore(registry, discard)
		defer store.Close() //nolint:errcheck // throwaway store
		if _, err := store.AddAutomation(stmt); err != nil {
			return checkResult{}, err
		}
	}

	return checkResult{
		Automation: stmt.String(),
		Registered: stmt.Registered().Sorted(),
		Subscribed: stmt.Subscribed().Sorted(),
		Connected:  stmt.Connected().Sorted(),
		Devices:    resolve,
	}, nil
}

func writeCheckResult(w io.Writer, r checkResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "automation: %s\n", r.Automation)
	fmt.Fprintf(w, "registered: %s\n", joinChannels(r.Registered))
	fmt.Fprintf(w, "subscribed: %s\n", joinChannels(r.Subscribed))
	fmt.Fprintf(w, "connected:  %s\n", joinChannels(r.Connected))
	if r.Devices {
		fmt.Fprintln(w, "devices:    ok")
	}
	return nil
}

func joinChannels(chs []rule.Channel) string {
	if len(chs) == 0 {
		return "-"
	}
	parts := make([]string, len(chs))
	for i, ch := range chs {
		parts[i] = ch.String()
	}
	return strings.Join(parts, ", ")
}

// ─── migrate ────────────────────────────────────────────────────────

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the value history database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(opts, func(db *database.DB) error {
				if err := db.Migrate(cmd.Context(), migrations.FS); err != nil {
					return err
				}
				return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), db)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(opts, func(db *database.DB) error {
				if err := db.MigrateDown(cmd.Context(), migrations.FS); err != nil {
					return err
				}
				return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), db)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(opts, func(db *database.DB) error {
				return printMigrationStatus(cmd.Context(), cmd.OutOrStdout(), db)
			})
		},
	})

	return cmd
}

// withDatabase opens the configured database for fn and closes it after.
func withDatabase(opts *rootOptions, fn func(db *database.DB) error) error {
	cfg, err := config.Load(opts.resolveConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Database.Enabled {
		return fmt.Errorf("database is disabled in %s", opts.resolveConfigPath())
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return fn(db)
}

func printMigrationStatus(ctx context.Context, w io.Writer, db *database.DB) error {
	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}
	for _, r := range applied {
		fmt.Fprintf(w, "applied  %s  %s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name)
	}
	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(w, "no migrations")
	}
	return nil
}
