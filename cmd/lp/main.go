package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"launchpath/internal/app"
	"launchpath/internal/config"
	"launchpath/internal/db"
	"launchpath/internal/domain"
	"launchpath/internal/pipeline"
	"launchpath/internal/server"
	"launchpath/internal/spotlight"
	"launchpath/internal/tracker"
)

var rootCmd = &cobra.Command{
	Use:   "lp",
	Short: "LaunchPath CLI",
	Long: `LaunchPath takes a business idea from draft to a registration checklist.
- Workspace: your .launchpath directory holding the database; launchpath.yml configures the pipeline and the task catalog.
- Ideas: drafts saved by title; saving the same title again returns the stored record.
- Validation: each run scores the idea and appends an immutable result to your history.
- Tasks: validation is followed by a generated registration checklist; tick items off with 'lp task toggle'.
- Spotlight: the single panel showing whichever stage is active (validation, tasks, connections, actions).
- Onboarding: 'lp onboarding set --path idea' plus 'lp onboarding load' runs the whole pipeline automatically.
- Event log: diary of changes, view with 'lp log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LAUNCHPATH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("owner", "", "owner identifier (defaults to local)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("owner", rootCmd.PersistentFlags().Lookup("owner"))
}

func registerCommands() {
	rootCmd.AddCommand(ideaCmd())
	rootCmd.AddCommand(validationCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(spotlightCmd())
	rootCmd.AddCommand(onboardingCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func ideaCmd() *cobra.Command {
	idea := &cobra.Command{
		Use:   "idea",
		Short: "Manage idea drafts",
		Long:  "Ideas are drafts saved by title. Submitting an existing title returns the stored record instead of creating a duplicate. Validate an idea to score it and generate the registration checklist.",
	}
	idea.AddCommand(ideaSubmitCmd())
	idea.AddCommand(ideaListCmd())
	idea.AddCommand(ideaShowCmd())
	idea.AddCommand(ideaValidateCmd())
	return idea
}

func ideaSubmitCmd() *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Save an idea draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("--title required")
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				orch := env.Manager.ForOwner(owner())
				idea, created, err := orch.SaveDraft(ctx, title, description)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"idea": idea, "created": created})
				}
				verb := "Saved"
				if !created {
					verb = "Already saved"
				}
				fmt.Printf("%s idea %q (%s)\n", verb, idea.Title, idea.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "idea title")
	cmd.Flags().StringVar(&description, "description", "", "idea description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func ideaListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ideas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Repo.ListIdeas(ctx, owner())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Created"})
				for _, i := range items {
					tw.AppendRow(table.Row{i.ID, i.Title, i.Status, i.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func ideaShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				idea, err := env.Repo.GetIdea(ctx, owner(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(idea)
			})
		},
	}
	return cmd
}

func ideaValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Validate an idea and generate tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				idea, err := env.Repo.GetIdea(ctx, owner(), args[0])
				if err != nil {
					return err
				}
				orch := env.Manager.ForOwner(owner())
				res, tasks, err := orch.ValidateIdea(ctx, idea)
				if err != nil {
					var pe *pipeline.PipelineError
					if errors.As(err, &pe) && pe.Stage == pipeline.StageGeneratingTasks {
						fmt.Printf("Validation stored (overall %d) but task generation failed: %v\n", res.OverallScore, pe.Err)
						fmt.Println("Retry with 'lp task retry'.")
						return nil
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"result": res, "tasks": tasks})
				}
				fmt.Printf("Validated %q: overall %d, market %d, feasibility %d, competition %d\n",
					res.IdeaTitle, res.OverallScore, res.MarketPotentialScore, res.FeasibilityScore, res.CompetitiveLandscapeScore)
				fmt.Printf("Generated %d registration tasks.\n", len(tasks))
				return nil
			})
		},
		Args: cobra.ExactArgs(1),
	}
	return cmd
}

func validationCmd() *cobra.Command {
	val := &cobra.Command{
		Use:   "validation",
		Short: "Validation history",
		Long:  "Every validation run appends an immutable result. The history keeps the title and description as they were at validation time.",
	}
	val.AddCommand(validationListCmd())
	val.AddCommand(validationLatestCmd())
	val.AddCommand(validationShowCmd())
	return val
}

func validationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List validation results, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Repo.ListValidationResults(ctx, owner())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Idea", "Overall", "Market", "Feasibility", "Competition", "Created"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.IdeaTitle, v.OverallScore, v.MarketPotentialScore, v.FeasibilityScore, v.CompetitiveLandscapeScore, v.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func validationLatestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the newest validation result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				v, err := env.Repo.LatestValidationResult(ctx, owner())
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func validationShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a validation result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				v, err := env.Repo.GetValidationResult(ctx, owner(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Registration tasks",
		Long:  "The checklist generated after validation. Toggle items as you complete them; progress is the rounded percentage of completed tasks.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskToggleCmd())
	task.AddCommand(taskProgressCmd())
	task.AddCommand(taskRetryCmd())
	return task
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registration tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Repo.ListTasks(ctx, owner())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Priority", "Done"})
				for _, t := range items {
					done := ""
					if t.Completed {
						done = "x"
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Category, t.Priority, done})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskToggleCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Mark a task complete (or --undo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				trk := tracker.New(env.DB)
				t, err := trk.Toggle(ctx, owner(), args[0], !undo)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the task incomplete")
	return cmd
}

func taskProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show checklist progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				items, err := env.Repo.ListTasks(ctx, owner())
				if err != nil {
					return err
				}
				completed := 0
				for _, t := range items {
					if t.Completed {
						completed++
					}
				}
				pct := tracker.Progress(items)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"total": len(items), "completed": completed, "progress": pct})
				}
				fmt.Printf("%d/%d tasks complete (%d%%)\n", completed, len(items), pct)
				return nil
			})
		},
	}
	return cmd
}

func taskRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry task generation after a partial failure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				orch := env.Manager.ForOwner(owner())
				tasks, err := orch.RetryTaskGeneration(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Generated %d registration tasks.\n", len(tasks))
				return nil
			})
		},
	}
	return cmd
}

func spotlightCmd() *cobra.Command {
	sp := &cobra.Command{
		Use:   "spotlight",
		Short: "Spotlight panel state",
	}
	sp.AddCommand(spotlightShowCmd())
	sp.AddCommand(spotlightModeCmd())
	return sp
}

func spotlightShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the spotlight state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				orch := env.Manager.ForOwner(owner())
				state, err := orch.State(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(state)
			})
		},
	}
	return cmd
}

func spotlightModeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode <validation|tasks|connections|actions>",
		Short: "Set the spotlight mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				orch := env.Manager.ForOwner(owner())
				if err := orch.SetMode(ctx, spotlight.Mode(args[0])); err != nil {
					return err
				}
				state, err := orch.State(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(state)
			})
		},
	}
	return cmd
}

func onboardingCmd() *cobra.Command {
	ob := &cobra.Command{
		Use:   "onboarding",
		Short: "Onboarding record",
		Long:  "The onboarding record is the pipeline trigger. Set path=idea with a title and description, then 'lp onboarding load' saves the draft and runs validation plus task generation.",
	}
	ob.AddCommand(onboardingSetCmd())
	ob.AddCommand(onboardingShowCmd())
	ob.AddCommand(onboardingLoadCmd())
	return ob
}

func onboardingSetCmd() *cobra.Command {
	var path, title, description string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the onboarding record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(path) == "" {
				return fmt.Errorf("--path required")
			}
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				rec := domain.OnboardingRecord{
					OwnerID:         owner(),
					Path:            path,
					IdeaTitle:       title,
					IdeaDescription: description,
					UpdatedAt:       time.Now().UTC().Format(time.RFC3339),
				}
				if err := env.Repo.UpsertOnboardingRecord(ctx, rec); err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "onboarding path (idea, explore, skip)")
	cmd.Flags().StringVar(&title, "title", "", "idea title")
	cmd.Flags().StringVar(&description, "description", "", "idea description")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func onboardingShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the onboarding record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				rec, err := env.Repo.GetOnboardingRecord(ctx, owner())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	return cmd
}

func onboardingLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the onboarding idea and run the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				orch := env.Manager.ForOwner(owner())
				if err := orch.LoadOnboardingIdea(ctx); err != nil {
					return err
				}
				state, err := orch.State(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(state)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace config",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				return printJSONOrTable(env.Config)
			})
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default launchpath.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: drafts, validations, generated tasks, toggles, and pipeline stage changes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				events, err := env.Repo.LatestEvents(ctx, n, owner(), evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, env *app.Env) error {
				handler, err := server.New(server.Config{
					DB:        env.DB,
					AppConfig: env.Config,
					Manager:   env.Manager,
					BasePath:  basePath,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving LaunchPath API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func owner() string {
	return app.ResolveOwner(viper.GetString("owner"))
}

func withEnv(ctx context.Context, fn func(context.Context, *app.Env) error) error {
	env, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
