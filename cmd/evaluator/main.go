package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/evaluator/internal/grading"
	"github.com/pavelanni/evaluator/internal/handler"
	appI18n "github.com/pavelanni/evaluator/internal/i18n"
	"github.com/pavelanni/evaluator/internal/llm"
	"github.com/pavelanni/evaluator/internal/llm/prompts"
	"github.com/pavelanni/evaluator/internal/model"
	"github.com/pavelanni/evaluator/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "evaluator",
		Short: "Exam answer evaluation service backed by LLM providers",
	}

	serve := serveCmd()
	root.AddCommand(serve, evaluateCmd(), useraddCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `evaluator --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addEngineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("providers", []string{llm.ProviderOpenAI, llm.ProviderGemini}, "Provider priority order")
	f.String("openai-key", "", "OpenAI API key (or set EVALUATOR_OPENAI_KEY)")
	f.String("openai-url", "", "OpenAI-compatible API base URL (empty = api.openai.com)")
	f.String("openai-model", "gpt-4o", "OpenAI model name")
	f.String("gemini-key", "", "Gemini API key (or set EVALUATOR_GEMINI_KEY)")
	f.String("gemini-url", llm.GeminiBaseURL, "Gemini OpenAI-compatible base URL")
	f.String("gemini-model", "gemini-2.0-flash", "Gemini model name")
	f.Bool("json-mode", false, "Request JSON object responses from providers")
	f.Duration("provider-timeout", grading.DefaultProviderTimeout, "Timeout for each provider attempt")
	f.Int("workers", grading.DefaultWorkers, "Questions or submissions evaluated concurrently")
	f.String("grade-scale", grading.CoarseBand.Name, "Letter grade table (coarse, fine)")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP evaluation API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "evaluator.db", "SQLite database path")
	f.String("admin-password", "", "Initial admin password (or set EVALUATOR_ADMIN_PASSWORD)")
	f.Bool("check-providers", false, "Ping every configured provider before serving")
	addEngineFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one submission file offline and print the result as JSON",
		RunE:  runEvaluate,
	}
	f := cmd.Flags()
	f.StringP("input", "i", "-", "Submission JSON file (- for stdin)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addEngineFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func useraddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a user in the database",
		RunE:  runUseradd,
	}
	f := cmd.Flags()
	f.String("db", "evaluator.db", "SQLite database path")
	f.StringP("username", "u", "", "Username (required)")
	f.String("display-name", "", "Display name (defaults to username)")
	f.StringP("password", "p", "", "Password (or set EVALUATOR_PASSWORD)")
	f.StringP("role", "r", string(model.UserRoleTeacher), "Role (student, teacher, admin)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored evaluations as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "evaluator.db", "SQLite database path")
	f.String("grade-scale", grading.CoarseBand.Name, "Letter grade table (coarse, fine)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EVALUATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("evaluator")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/evaluator")
	v.AddConfigPath("/etc/evaluator")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newEngine wires catalog, providers and engine from the command's configuration.
func newEngine(v *viper.Viper) (*grading.Engine, *appI18n.Catalog, []*llm.Client, error) {
	catalog, err := appI18n.New(v.GetString("lang"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init i18n: %w", err)
	}
	cfg, err := engineConfig(v)
	if err != nil {
		return nil, nil, nil, err
	}
	clients, err := buildProviders(v)
	if err != nil {
		return nil, nil, nil, err
	}
	engine, err := grading.NewEngine(cfg, asProviders(clients), catalog, slog.Default())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create engine: %w", err)
	}
	return engine, catalog, clients, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	engine, catalog, clients, err := newEngine(v)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.EnsureGradeScale(ctx, engine.Config().Band.Name); err != nil {
		return err
	}
	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(ctx); err != nil {
		slog.Warn("failed to clean up expired tokens", "error", err)
	} else if n > 0 {
		slog.Info("removed expired tokens", "count", n)
	}

	pingers := make([]handler.Pinger, len(clients))
	for i, c := range clients {
		pingers[i] = c
		if v.GetBool("check-providers") {
			if err := c.Ping(ctx); err != nil {
				return fmt.Errorf("%s health check: %w", c.Name(), err)
			}
			slog.Info("provider endpoint OK", "provider", c.Name(), "model", c.Model())
		}
	}

	h := handler.New(db, engine, catalog, slog.Default(), pingers...)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	cfg := engine.Config()
	slog.Info("starting server",
		"addr", addr,
		"providers", engine.Providers(),
		"provider_timeout", cfg.ProviderTimeout,
		"workers", cfg.Workers,
		"grade_scale", cfg.Band.Name,
		"prompt_variant", cfg.PromptVariant,
		"lang", catalog.Lang(),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// submissionFile is the input format of the evaluate command.
type submissionFile struct {
	Subject   string                  `json:"subject"`
	Questions []model.QuestionSpec    `json:"questions" validate:"required,min=1,dive"`
	Answers   []model.CandidateAnswer `json:"answers" validate:"dive"`
}

type evaluateOutput struct {
	Evaluation model.SubmissionEvaluation                         `json:"evaluation"`
	Outcomes   []model.BatchItemOutcome[model.QuestionEvaluation] `json:"outcomes"`
	Failed     int                                                `json:"failed"`
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	engine, _, _, err := newEngine(v)
	if err != nil {
		return err
	}

	in, err := readInput(v.GetString("input"))
	if err != nil {
		return err
	}
	var sub submissionFile
	if err := json.Unmarshal(in, &sub); err != nil {
		return fmt.Errorf("parse submission: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(sub); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}
	for i := range sub.Questions {
		if sub.Questions[i].Subject == "" {
			sub.Questions[i].Subject = sub.Subject
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, batch, err := engine.EvaluateSubmission(ctx, sub.Questions, sub.Answers)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return writeOutput(v.GetString("output"), evaluateOutput{
		Evaluation: result,
		Outcomes:   batch.Outcomes,
		Failed:     batch.Failed,
	})
}

func runUseradd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	role := model.UserRole(strings.ToLower(v.GetString("role")))
	switch role {
	case model.UserRoleStudent, model.UserRoleTeacher, model.UserRoleAdmin:
	default:
		return fmt.Errorf("invalid role %q", role)
	}
	password := v.GetString("password")
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters: set --password or EVALUATOR_PASSWORD")
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	username := v.GetString("username")
	displayName := v.GetString("display-name")
	if displayName == "" {
		displayName = username
	}

	_, err = db.CreateUser(cmd.Context(), model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	band, err := grading.BandByName(v.GetString("grade-scale"))
	if err != nil {
		return err
	}
	catalog, err := appI18n.New("en")
	if err != nil {
		return err
	}
	engine, err := grading.NewEngine(grading.Config{
		ProviderTimeout: grading.DefaultProviderTimeout,
		Workers:         1,
		Band:            band,
		PromptVariant:   prompts.PromptStandard,
	}, nil, catalog, slog.Default())
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	results, err := db.ExportResults(ctx)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	evals, err := db.Evaluations(ctx, 0)
	if err != nil {
		return fmt.Errorf("load evaluations: %w", err)
	}

	return writeOutput(v.GetString("output"), model.EvaluationExport{
		ExportedAt: time.Now().UTC(),
		GradeScale: band.Name,
		Stats:      engine.Stats(evals),
		Results:    results,
	})
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EVALUATOR_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
