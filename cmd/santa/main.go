package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"secretsanta/internal/app"
	"secretsanta/internal/config"
	"secretsanta/internal/db"
	"secretsanta/internal/domain"
	"secretsanta/internal/engine"
	"secretsanta/internal/logging"
	"secretsanta/internal/migrate"
	"secretsanta/internal/repo"
	"secretsanta/internal/server"
	"secretsanta/internal/store"
)

const (
	exitFailure    = 1
	exitValidation = 2
	exitExhausted  = 3
)

func main() {
	cobra.OnInitialize(initConfig)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCmd(os.Stdin, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "santa",
		Short: "Secret Santa assignments",
		Long: `santa draws Secret Santa rounds: every participant gets exactly one recipient,
never themselves and never the person they had last round.

Run without a subcommand for the interactive prompts, or use 'santa assign'
for scripted runs. Each saved round is recorded in .santa/santa.db inside the
workspace so the next round can use it as its prior with --prior-from-history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), nil, func(ctx context.Context, svc app.Service) error {
				return app.Interactive(ctx, svc, app.NewPrompter(in, out))
			})
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	addPersistentFlags(root)
	root.AddCommand(assignCmd(out))
	root.AddCommand(validateCmd(out))
	root.AddCommand(historyCmd(out))
	root.AddCommand(logCmd(out))
	root.AddCommand(configCmd(out))
	root.AddCommand(serveCmd(out))
	return root
}

func initConfig() {
	workspace := viper.GetString("workspace")
	if workspace == "" {
		workspace = "."
	}
	if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: load .env:", err)
	}
	viper.SetEnvPrefix("SANTA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags(root *cobra.Command) {
	root.PersistentFlags().StringP("workspace", "w", ".", "workspace directory (santa.yml, .santa/)")
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default from santa.yml)")
	_ = viper.BindPFlag("workspace", root.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
}

type engineFlags struct {
	attempts int
	repair   string
	seed     int64
}

func (f *engineFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.attempts, "attempts", 0, "attempt budget (default from santa.yml)")
	cmd.Flags().StringVar(&f.repair, "repair", "", "repair mode: single-pass or fixed-point")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed for a reproducible draw")
}

func (f *engineFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("attempts") {
		cfg.Engine.MaxAttempts = f.attempts
	}
	if cmd.Flags().Changed("repair") {
		cfg.Engine.Repair = f.repair
	}
	if cmd.Flags().Changed("seed") {
		cfg.Engine.Seed = f.seed
	}
	return cfg.Validate()
}

func assignCmd(out io.Writer) *cobra.Command {
	var req app.Request
	var ef engineFlags
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Draw a round from files and save the result",
		Example: `  santa assign -p employees.csv --prior last_year.csv -o result.csv
  santa assign -p employees.xlsx --prior-from-history --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tune := func(cfg *config.Config) error { return ef.apply(cmd, cfg) }
			return withService(cmd.Context(), tune, func(ctx context.Context, svc app.Service) error {
				res, err := svc.Run(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out, res)
				}
				printAssignments(out, res.Assignments)
				switch {
				case req.DryRun:
					fmt.Fprintf(out, "Dry run: found in %d attempt(s), nothing saved\n", res.Attempts)
				case res.RunID != "":
					fmt.Fprintf(out, "Results successfully saved to %s (run %s)\n", res.OutputPath, res.RunID)
				default:
					fmt.Fprintf(out, "Results successfully saved to %s\n", res.OutputPath)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&req.ParticipantsPath, "participants", "p", "", "participant file (.csv or .xlsx)")
	cmd.Flags().StringVar(&req.PriorPath, "prior", "", "last round's assignment file")
	cmd.Flags().BoolVar(&req.PriorFromHistory, "prior-from-history", false, "use the latest recorded run as last round")
	cmd.Flags().StringVarP(&req.OutputPath, "out", "o", "", "result file (default from santa.yml)")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "print the draw without saving it")
	ef.register(cmd)
	_ = cmd.MarkFlagRequired("participants")
	return cmd
}

func validateCmd(out io.Writer) *cobra.Command {
	var participantsPath, priorPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check participant and prior files without drawing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			s := store.Store{Logger: newLogger(cfg)}
			participants, err := s.LoadParticipants(participantsPath)
			if err != nil {
				return err
			}
			priors, err := s.LoadPriorAssignments(priorPath)
			if err != nil {
				return err
			}
			summary := map[string]any{
				"participants":      len(participants),
				"prior_assignments": len(priors),
				"prior_constraints": len(engine.PriorMap(priors)),
			}
			if viper.GetBool("json") {
				return printJSON(out, summary)
			}
			fmt.Fprintf(out, "%s: %d participants OK\n", participantsPath, len(participants))
			if priorPath != "" {
				fmt.Fprintf(out, "%s: %d prior assignments OK\n", priorPath, len(priors))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&participantsPath, "participants", "p", "", "participant file")
	cmd.Flags().StringVar(&priorPath, "prior", "", "last round's assignment file")
	_ = cmd.MarkFlagRequired("participants")
	return cmd
}

func historyCmd(out io.Writer) *cobra.Command {
	h := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}
	h.AddCommand(historyListCmd(out))
	h.AddCommand(historyShowCmd(out))
	h.AddCommand(historyExportCmd(out))
	return h
}

func historyListCmd(out io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				runs, err := r.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out, runs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(out)
				tw.AppendHeader(table.Row{"ID", "Created", "Participants", "Attempts", "Repair", "Output"})
				for _, run := range runs {
					tw.AppendRow(table.Row{run.ID, run.CreatedAt, run.ParticipantCount, run.Attempts, run.Repair, run.OutputPath})
				}
				tw.Render()
				fmt.Fprintf(out, "History: %s\n", db.Path(viper.GetString("workspace")))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs (0 for all)")
	return cmd
}

func historyShowCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				run, err := r.GetRun(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				assignments, err := r.RunAssignments(ctx, run.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out, map[string]any{"run": run, "assignments": assignments})
				}
				fmt.Fprintf(out, "Run %s (%s), %d participants, %d attempt(s)\n", run.ID, run.CreatedAt, run.ParticipantCount, run.Attempts)
				printAssignments(out, assignments)
				return nil
			})
		},
	}
}

func historyExportCmd(out io.Writer) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write a recorded run to a file usable as --prior",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				assignments, err := r.RunAssignments(ctx, args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				if err := (store.Store{}).SaveAssignments(target, assignments); err != nil {
					return err
				}
				fmt.Fprintf(out, "Exported %d assignments to %s\n", len(assignments), target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&target, "out", "o", "", "destination file (.csv or .xlsx)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func logCmd(out io.Writer) *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Run event log"}
	var n int
	var evtType, runID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				evts, err := r.LatestEvents(ctx, n, runID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out, evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(out)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Run", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.RunID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&runID, "run", "", "run id filter")
	l.AddCommand(tail)
	return l
}

func configCmd(out io.Writer) *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage santa.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default santa.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(out, cfg)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	c.AddCommand(initCmd, show)
	return c
}

func serveCmd(out io.Writer) *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the assignment API. Set SANTA_JWT_SECRET to require HS256 bearer tokens.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = cfg.Server.BasePath
			}
			logger := newLogger(cfg)
			var r *repo.Repo
			if cfg.History.Enabled {
				conn, err := openHistory(cmd.Context(), workspace)
				if err != nil {
					return err
				}
				defer conn.Close()
				r = &repo.Repo{DB: conn}
			}
			handler, err := server.New(server.Config{
				NewService: newServiceFactory(cfg, r, logger),
				BasePath:   basePath,
				Auth:       server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), Logger: logger},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			fmt.Fprintf(out, "Serving Secret Santa API on http://%s%s (OpenAPI at /openapi.json, docs at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// newServiceFactory builds one Service per request. A fixed engine.seed would
// hand every request the same draw, so the server always seeds from the clock.
func newServiceFactory(cfg *config.Config, r *repo.Repo, logger *slog.Logger) func() app.Service {
	serveCfg := *cfg
	if serveCfg.Engine.Seed != 0 {
		logger.Warn("engine.seed is ignored by serve", "seed", serveCfg.Engine.Seed)
		serveCfg.Engine.Seed = 0
	}
	return func() app.Service { return app.New(&serveCfg, r, logger) }
}

func withService(ctx context.Context, tune func(*config.Config) error, fn func(context.Context, app.Service) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if tune != nil {
		if err := tune(cfg); err != nil {
			return err
		}
	}
	logger := newLogger(cfg)
	var r *repo.Repo
	if cfg.History.Enabled {
		conn, err := openHistory(ctx, workspace)
		if err != nil {
			return err
		}
		defer conn.Close()
		r = &repo.Repo{DB: conn}
	}
	return fn(ctx, app.New(cfg, r, logger))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := openHistory(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

// openHistory opens the workspace database and brings its schema up to date.
func openHistory(ctx context.Context, workspace string) (*sql.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := viper.GetString("log-level")
	if level == "" {
		level = cfg.Log.Level
	}
	logger, err := logging.New(os.Stderr, level)
	if err != nil {
		logger, _ = logging.New(os.Stderr, "info")
		logger.Warn("falling back to info logging", "error", err)
	}
	return logger
}

func exitCode(err error) int {
	switch {
	case store.IsValidation(err),
		errors.Is(err, engine.ErrTooFewParticipants),
		errors.Is(err, engine.ErrDuplicateParticipant):
		return exitValidation
	case errors.Is(err, engine.ErrNoValidAssignment):
		return exitExhausted
	default:
		return exitFailure
	}
}

func printAssignments(out io.Writer, assignments []domain.Assignment) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Giver", "Giver Email", "Recipient", "Recipient Email"})
	for _, a := range assignments {
		tw.AppendRow(table.Row{a.GiverName, a.GiverEmail, a.RecipientName, a.RecipientEmail})
	}
	tw.Render()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
