package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webmaster-monitor/internal/catalog"
	"webmaster-monitor/internal/host"
	"webmaster-monitor/internal/server"
)

// withApp loads config, wires the agent and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the monitoring API and run scheduled update checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			gin.SetMode(a.cfg.GinMode)
			if err := a.activate(ctx); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.runner.Disabled() {
				a.logger.Info("scheduled update checks disabled")
			} else {
				go a.runner.Run(ctx)
			}
			a.logger.Info("agent started",
				zap.String("version", a.cfg.AgentVersion),
				zap.String("prefix", a.cfg.APIPrefix),
				zap.Strings("tasks", a.runner.Tasks()))
			return server.Run(ctx, a.cfg, server.NewRouter(a.deps()), a.logger)
		})
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Show or rotate the API key",
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current API key, creating one if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			key, _, err := a.creds.EnsureExists(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		})
	},
}

var keyRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Replace the API key; the previous key stops working immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			key, err := a.creds.Rotate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Inspect and apply updates",
}

var updateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Force an agent update check, bypassing all caches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			set, err := a.poller.ForceCheck(ctx)
			if err != nil {
				return err
			}
			if offer, ok := set.Response[a.cfg.AgentBasename]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "update available: %s -> %s\n", a.cfg.AgentVersion, offer.NewVersion)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "up to date (%s)\n", a.cfg.AgentVersion)
			return nil
		})
	},
}

var updateInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the remote release record",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			info, err := a.poller.Check(ctx, false)
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		})
	},
}

// refreshResult is one line of `update refresh` output.
type refreshResult struct {
	Type        host.Kind `json:"type"`
	LastChecked time.Time `json:"last_checked"`
	Pending     []string  `json:"pending"`
}

var updateRefreshCmd = &cobra.Command{
	Use:   "refresh [type...]",
	Short: "Run the scheduled update checks now and list pending updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := []host.Kind{host.KindPlugin, host.KindTheme, host.KindCore}
		if len(args) > 0 {
			kinds = kinds[:0]
			for _, raw := range args {
				kind, ok := host.ParseKind(raw)
				if !ok {
					return fmt.Errorf("invalid update type %q", raw)
				}
				kinds = append(kinds, kind)
			}
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			results := make([]refreshResult, 0, len(kinds))
			for _, kind := range kinds {
				if err := a.runner.RunNow(ctx, "update-check-"+string(kind)); err != nil {
					return err
				}
				set, err := a.catalog.PendingUpdates(ctx, kind)
				if err != nil {
					return err
				}
				pending := make([]string, 0, len(set.Response))
				for id := range set.Response {
					pending = append(pending, id)
				}
				for _, o := range set.Core {
					pending = append(pending, o.NewVersion)
				}
				sort.Strings(pending)
				results = append(results, refreshResult{Type: kind, LastChecked: a.catalog.LastChecked(kind).UTC(), Pending: pending})
			}
			return printJSON(cmd, results)
		})
	},
}

var updateDetailsCmd = &cobra.Command{
	Use:   "details <slug>",
	Short: "Print the package details shown for an update",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			details, err := a.catalog.Details(ctx, args[0])
			if err != nil {
				return err
			}
			if details == nil {
				return fmt.Errorf("no details for %q", args[0])
			}
			return printJSON(cmd, details)
		})
	},
}

var updateApplyCmd = &cobra.Command{
	Use:   "apply <type> <slug>",
	Short: "Install the pending update for a plugin, theme or core",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := host.ParseKind(args[0])
		if !ok {
			return fmt.Errorf("invalid update type %q", args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			result, uerr := a.coord.Apply(ctx, kind, args[1])
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if uerr != nil {
				return uerr
			}
			return nil
		})
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the host catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <inventory.yaml>",
	Short: "Load a YAML inventory into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := catalog.LoadInventory(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.catalog.Import(ctx, inv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", args[0])
			return nil
		})
	},
}

func init() {
	keyCmd.AddCommand(keyShowCmd, keyRotateCmd)
	updateCmd.AddCommand(updateCheckCmd, updateInfoCmd, updateRefreshCmd, updateDetailsCmd, updateApplyCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(serveCmd, keyCmd, updateCmd, catalogCmd)
}
