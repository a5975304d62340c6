package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/artpar/waveplan/internal/core/catalog"
	"github.com/artpar/waveplan/internal/core/deployment"
	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/core/rollback"
	"github.com/artpar/waveplan/internal/core/validation"
	"github.com/artpar/waveplan/internal/shell/provider"
	"github.com/artpar/waveplan/internal/shell/store"
)

// Output formats
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath  string
	catalogPath string
	output      string
}

// =============================================================================
// Root Command
// =============================================================================

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "waveplan",
		Short: "Plan dependency-ordered service deployments in waves",
		Long: `waveplan reads a service catalog (services, their dependencies and
estimated durations) and groups the services into deployment waves.
Services in a wave have no dependencies on each other and can be
deployed together; waves run strictly in order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case OutputTable, OutputJSON:
				return nil
			default:
				return newExitError("ParseFlags", fmt.Errorf("unsupported output format %q", opts.output), ExitConfigError)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file")
	flags.StringVar(&opts.catalogPath, "catalog", "", "Path to the service catalog (overrides catalog.path)")
	flags.StringVarP(&opts.output, "output", "o", OutputTable, "Output format: table or json")

	root.AddCommand(
		newPlanCmd(opts),
		newValidateCmd(opts),
		newRollbackCmd(opts),
		newServeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// =============================================================================
// Plan Command
// =============================================================================

type planOptions struct {
	strategy    string
	services    []string
	timingModel string
	save        bool
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	opts := &planOptions{}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute a deployment plan",
		Long: `Compute the deployment waves for the catalog, or for a subset of it.

Examples:
  waveplan plan --strategy parallel_optimized
  waveplan plan --services order-service,menu-service --output json
  waveplan plan --timing-model pipeline --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			if opts.strategy == "" {
				opts.strategy = cfg.Planner.Strategy
			}
			if opts.timingModel == "" {
				opts.timingModel = cfg.Planner.TimingModel
			}
			model, err := domain.ParseTimingModel(opts.timingModel)
			if err != nil {
				return newExitError("ParseTimingModel", err, ExitConfigError)
			}

			plan, err := deployment.BuildPlan(deployment.PlanRequest{
				Graph:          cat.Graph,
				Services:       opts.services,
				Strategy:       opts.strategy,
				Catalog:        cat.Strategies,
				TimingModel:    model,
				StrictServices: cfg.Planner.StrictServices,
			})
			if err != nil {
				return newExitError("BuildPlan", err, planExitCode(err))
			}

			rec := domain.NewPlanRecord("plan_"+uuid.New().String()[:8], opts.services, cat.RollbackOrder, *plan)
			if opts.save {
				if err := savePlan(cmd.Context(), cfg, rec); err != nil {
					return err
				}
				logger.Info("plan saved", "plan_id", rec.ID, "database", cfg.Database.DSN)
			}

			out := cmd.OutOrStdout()
			if root.output == OutputJSON {
				if opts.save {
					return writeJSON(out, rec)
				}
				return writeJSON(out, plan)
			}
			if opts.save {
				fmt.Fprintf(out, "Plan %s\n", rec.ID)
			}
			renderPlan(out, plan)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.strategy, "strategy", "s", "", "Strategy: sequential, parallel_optimized or priority_based (default: planner.strategy)")
	flags.StringSliceVar(&opts.services, "services", nil, "Services to plan (default: all)")
	flags.StringVar(&opts.timingModel, "timing-model", "", "Timing model: legacy or pipeline (default: planner.timing_model)")
	flags.BoolVar(&opts.save, "save", false, "Store the plan in the database so the server can run it")
	return cmd
}

func savePlan(ctx context.Context, cfg *Config, rec *domain.PlanRecord) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.CreatePlan(ctx, rec); err != nil {
		return newExitError("SavePlan", err, ExitDatabaseError)
	}
	return nil
}

// =============================================================================
// Validate Command
// =============================================================================

func newValidateCmd(root *rootOptions) *cobra.Command {
	var services []string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the catalog for cycles and undeclared dependencies",
		Long: `Check the dependency graph and report every problem found.
The command exits with status 2 when the graph is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			var res validation.Result
			if len(services) > 0 {
				res = validation.ValidateSelection(cat.Graph, services)
			} else {
				res = validation.ValidateGraph(cat.Graph)
			}

			out := cmd.OutOrStdout()
			if root.output == OutputJSON {
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else {
				renderValidation(out, res, cat.Graph.Len())
			}

			if !res.Valid {
				return newExitError("Validate", res.Err(), ExitValidationError)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&services, "services", nil, "Validate only these services (default: all)")
	return cmd
}

// =============================================================================
// Rollback Command
// =============================================================================

type rollbackOptions struct {
	deployed []string
	planID   string
	strategy string
}

// rollbackResult is the JSON output of the rollback command.
type rollbackResult struct {
	Order []string `json:"order"`
}

func newRollbackCmd(root *rootOptions) *cobra.Command {
	opts := &rollbackOptions{}

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Print the teardown order for deployed services",
		Long: `Print the order in which deployed services should be rolled back.

The catalog's rollback_order is used when present. Otherwise services are
torn down in reverse wave order of a plan: the stored plan named by --plan,
or a fresh plan built with --strategy.

Examples:
  waveplan rollback --deployed auth-service,menu-service
  waveplan rollback --deployed a,b,c --plan plan_1a2b3c4d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var order []string
			if opts.planID != "" {
				order, err = storedPlanRollback(cmd.Context(), cfg, opts.planID, opts.deployed)
			} else {
				order, err = catalogRollback(cmd.Context(), cfg, logger, opts)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if root.output == OutputJSON {
				return writeJSON(out, rollbackResult{Order: order})
			}
			renderRollback(out, order)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&opts.deployed, "deployed", nil, "Services that are currently deployed")
	flags.StringVar(&opts.planID, "plan", "", "Use the rollback order of a stored plan")
	flags.StringVarP(&opts.strategy, "strategy", "s", "", "Strategy for the reverse-wave fallback (default: planner.strategy)")
	cmd.MarkFlagRequired("deployed")
	return cmd
}

func storedPlanRollback(ctx context.Context, cfg *Config, planID string, deployed []string) ([]string, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	rec, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, newExitError("GetPlan", err, ExitDatabaseError)
	}
	return rollback.Resolve(rec.RollbackOrder, rec.Plan.Waves, deployed), nil
}

func catalogRollback(ctx context.Context, cfg *Config, logger *slog.Logger, opts *rollbackOptions) ([]string, error) {
	cat, err := loadCatalog(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(cat.RollbackOrder) > 0 {
		return rollback.Order(cat.RollbackOrder, opts.deployed), nil
	}

	strategy := opts.strategy
	if strategy == "" {
		strategy = cfg.Planner.Strategy
	}
	plan, err := deployment.BuildPlan(deployment.PlanRequest{
		Graph:    cat.Graph,
		Strategy: strategy,
		Catalog:  cat.Strategies,
	})
	if err != nil {
		return nil, newExitError("BuildPlan", err, planExitCode(err))
	}
	return rollback.ReverseWaves(plan.Waves, opts.deployed), nil
}

// =============================================================================
// Version Command
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "waveplan %s (built %s)\n", Version, BuildTime)
		},
	}
}

// =============================================================================
// Helpers
// =============================================================================

// loadSettings loads configuration and applies flag overrides.
func loadSettings(root *rootOptions, logOut io.Writer) (*Config, *slog.Logger, error) {
	cfg, err := LoadConfig(root.configPath)
	if err != nil {
		return nil, nil, newExitError("LoadConfig", err, ExitConfigError)
	}
	if root.catalogPath != "" {
		cfg.Catalog.Path = root.catalogPath
	}
	return cfg, SetupLogger(cfg, logOut), nil
}

// loadCatalog reads the configured catalog once.
func loadCatalog(ctx context.Context, cfg *Config, logger *slog.Logger) (*catalog.Catalog, error) {
	p, err := provider.NewFileProvider(cfg.Catalog.Path, cfg.Catalog.Format, logger)
	if err != nil {
		return nil, newExitError("LoadCatalog", err, ExitConfigError)
	}
	cat, err := p.Catalog(ctx)
	if err != nil {
		return nil, newExitError("LoadCatalog", err, ExitConfigError)
	}
	return cat, nil
}

// openStore opens the configured database, creating its directory.
func openStore(cfg *Config) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.Database.DSN); cfg.Database.DSN != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newExitError("OpenStore", err, ExitDatabaseError)
		}
	}
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, newExitError("OpenStore", err, ExitDatabaseError)
	}
	return s, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
