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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/aitutor/internal/contentwatch"
	"github.com/pavelanni/aitutor/internal/embedctx"
	"github.com/pavelanni/aitutor/internal/gateway"
	"github.com/pavelanni/aitutor/internal/handler"
	appI18n "github.com/pavelanni/aitutor/internal/i18n"
	"github.com/pavelanni/aitutor/internal/llm"
	"github.com/pavelanni/aitutor/internal/model"
	"github.com/pavelanni/aitutor/internal/store"
	"github.com/pavelanni/aitutor/internal/tutorsvc"
)

//go:generate templ generate

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aitutor",
		Short: "AI tutor embedded in a learning management system",
	}

	serve := serveCmd()
	root.AddCommand(serve, serviceCmd(), exportCmd(), resolveCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `aitutor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the embedded UI server the LMS iframe points at",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("service-url", "http://localhost:8000/api/v1", "Base URL of the tutoring service API")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /tutor)")
	f.Int64("default-course-id", 2, "Course id used when the host omits courseId")
	f.Int64("default-student-id", 3, "Student id used when the host omits studentId")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.Duration("view-idle-ttl", 2*time.Hour, "Drop views unused for longer than this")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Start the tutoring service API",
		RunE:  runService,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("db", "aitutor.db", "SQLite database path")
	f.String("roster", "", "YAML roster of courses and enrolled students to import")
	f.String("content-dir", "content", "Directory with course content, one subdirectory per course id")
	f.Bool("watch-content", false, "Re-ingest a course when its content directory changes")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Int("top-k", 3, "Course chunks retrieved per question")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export course progress as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "aitutor.db", "SQLite database path")
	f.Int64("course-id", 0, "Course to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("course-id")

	return cmd
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <embed-url>",
		Short: "Print the session context an iframe URL resolves to",
		Args:  cobra.ExactArgs(1),
		RunE:  runResolve,
	}
	f := cmd.Flags()
	f.Int64("default-course-id", 2, "Course id used when the URL omits courseId")
	f.Int64("default-student-id", 3, "Student id used when the URL omits studentId")
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

	v.SetEnvPrefix("AITUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("aitutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/aitutor")
	v.AddConfigPath("/etc/aitutor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// serveHTTP runs srv in g and shuts it down when ctx is done.
func serveHTTP(ctx context.Context, g *errgroup.Group, srv *http.Server) {
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	svc, err := gateway.New(v.GetString("service-url"))
	if err != nil {
		return fmt.Errorf("create service client: %w", err)
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.ServeConfig{
		BasePath:         basePath,
		DefaultCourseID:  v.GetInt64("default-course-id"),
		DefaultStudentID: v.GetInt64("default-student-id"),
		ViewIdleTTL:      v.GetDuration("view-idle-ttl"),
	}
	h := handler.New(svc, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, h.Routes)
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			target := basePath + "/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})
	} else {
		h.Routes(r)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	addr := v.GetString("addr")
	serveHTTP(gctx, g, &http.Server{Addr: addr, Handler: r})

	// A non-positive TTL keeps views for the life of the process.
	if cfg.ViewIdleTTL > 0 {
		interval := max(min(time.Minute, cfg.ViewIdleTTL/2), time.Second)
		g.Go(func() error {
			return h.Registry().Run(gctx, interval, cfg.ViewIdleTTL)
		})
	}

	slog.Info("starting embedded UI server",
		"addr", addr,
		"service_url", svc.BaseURL(),
		"lang", lang,
		"base_path", basePath,
		"default_course_id", cfg.DefaultCourseID,
		"default_student_id", cfg.DefaultStudentID,
		"view_idle_ttl", cfg.ViewIdleTTL,
	)
	return g.Wait()
}

func runService(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if path := v.GetString("roster"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read roster: %w", err)
		}
		if _, err := db.ImportRoster(path, data); err != nil {
			return fmt.Errorf("import roster: %w", err)
		}
	}

	llmClient := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
	if err := llmClient.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	contentDir := v.GetString("content-dir")
	svc := tutorsvc.New(db, llmClient, tutorsvc.Config{
		ContentDir: contentDir,
		TopK:       v.GetInt("top-k"),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	addr := v.GetString("addr")
	serveHTTP(gctx, g, &http.Server{Addr: addr, Handler: tutorsvc.NewAPI(svc).Routes()})

	if v.GetBool("watch-content") {
		w, err := contentwatch.New(contentDir, func(ctx context.Context, courseID int64) error {
			_, err := svc.Ingest(ctx, courseID)
			return err
		}, 0)
		if err != nil {
			return fmt.Errorf("create content watcher: %w", err)
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	slog.Info("starting tutoring service",
		"addr", addr,
		"db", v.GetString("db"),
		"content_dir", contentDir,
		"watch_content", v.GetBool("watch-content"),
		"model", v.GetString("llm-model"),
	)
	return g.Wait()
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportCourse(v.GetInt64("course-id"))
	if err != nil {
		return fmt.Errorf("export course: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
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

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)

	p, err := embedctx.FromURL(args[0])
	if err != nil {
		return fmt.Errorf("parse embed URL: %w", err)
	}
	sc := embedctx.Resolve(p, embedctx.Defaults{
		CourseID:  v.GetInt64("default-course-id"),
		StudentID: v.GetInt64("default-student-id"),
	})
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sc)
}
