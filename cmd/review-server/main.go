package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sourcegraph/conc/pool"

	server "github.com/860844175/review-system/internal"
	"github.com/860844175/review-system/internal/assignment"
	"github.com/860844175/review-system/internal/config"
	"github.com/860844175/review-system/internal/eventbus"
	"github.com/860844175/review-system/internal/platform"
	"github.com/860844175/review-system/internal/review"
	"github.com/860844175/review-system/internal/reviewer"
	"github.com/860844175/review-system/internal/sourcesystem"
	"github.com/860844175/review-system/internal/task"
	taskrepo "github.com/860844175/review-system/internal/task/repositoryimpl"
	"github.com/860844175/review-system/internal/tasklog"
	tasklogrepo "github.com/860844175/review-system/internal/tasklog/repositoryimpl"
	"github.com/860844175/review-system/pkg/clog"
	"github.com/860844175/review-system/pkg/httpjson"
	"github.com/860844175/review-system/pkg/panicerr"
	"github.com/860844175/review-system/pkg/retry"
	"github.com/860844175/review-system/pkg/storage"
)

const shutdownTimeout = 10 * time.Second

var (
	app = kingpin.New("review-server", "Clinical triage review task routing service")

	serveCmd = app.Command("serve", "Run the HTTP and connect server").Default()

	tasksCmd = app.Command("tasks", "Inspect the local task store")

	tasksListCmd    = tasksCmd.Command("list", "List all tasks")
	tasksListStatus = tasksListCmd.Flag("status", "Only show tasks in this status").Enum("pending", "assigned", "completed")

	tasksDedupeCmd     = tasksCmd.Command("dedupe", "Remove duplicate tasks per user and scenario through the running server")
	tasksDedupeOffline = tasksDedupeCmd.Flag("offline", "Rewrite the store directly; the server must be stopped").Bool()

	tasksShowCmd = tasksCmd.Command("show", "Show a task and its log")
	tasksShowID  = tasksShowCmd.Arg("id", "Task ID").Required().String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	setupLogger(env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, err := newStorage(ctx, env)
	if err != nil {
		slog.Error("failed to create storage", "type", env.StorageEnv.Type, "error", err)
		os.Exit(1)
	}

	switch command {
	case serveCmd.FullCommand():
		err = serve(ctx, env, store)
	case tasksListCmd.FullCommand():
		err = listTasks(ctx, taskrepo.NewYAMLRepository(store), task.Status(*tasksListStatus))
	case tasksDedupeCmd.FullCommand():
		if *tasksDedupeOffline {
			err = dedupeTasks(ctx, taskrepo.NewYAMLRepository(store))
		} else {
			var res task.DedupResult
			if res, err = dedupeViaServer(ctx, env.LocalBaseURL, env.APIKey); err == nil {
				fmt.Printf("removed %d duplicate task(s), %d kept\n", res.Removed, res.Kept)
			}
		}
	case tasksShowCmd.FullCommand():
		err = showTask(ctx, taskrepo.NewYAMLRepository(store), tasklogrepo.NewYAMLRepository(store), *tasksShowID)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.IsLocal() {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func newStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		return storage.NewS3Storage(ctx, env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
	default:
		return storage.NewLocalStorage(env.StorageEnv.BaseDir)
	}
}

func serve(ctx context.Context, env *config.Env, store storage.Storage) error {
	bus := eventbus.New()
	taskRepo := taskrepo.NewYAMLRepository(store)
	taskLogRepo := tasklogrepo.NewYAMLRepository(store)

	platformClient := platform.NewClient(
		env.PlatformEnv.BaseURL,
		env.PlatformEnv.APIKey,
		env.PlatformEnv.TaskKind,
		httpjson.WithTimeout(env.PlatformEnv.Timeout),
		httpjson.WithRetry(env.PlatformEnv.RetryPolicy()),
	)
	sourceClient := sourcesystem.NewClient(
		env.SourceSystemEnv.BaseURL,
		env.SourceSystemEnv.APIKey,
		env.SourceSystemEnv.LookupTimeout,
		httpjson.WithTimeout(env.SourceSystemEnv.Timeout),
		httpjson.WithRetry(env.SourceSystemEnv.RetryPolicy()),
	)

	var directory reviewer.Directory = platformClient
	var roster *reviewer.FileDirectory
	if env.ReviewerSource == config.ReviewerSourceFixture {
		var err error
		roster, err = reviewer.NewFileDirectory(env.ReviewerFixture)
		if err != nil {
			return fmt.Errorf("failed to load reviewer fixture: %w", err)
		}
		directory = roster
	}

	assigner, err := assignment.NewAssigner(directory, env.AssignmentEnv.Strategy)
	if err != nil {
		return err
	}

	svc := review.NewService(review.Dependencies{
		Tasks:        taskRepo,
		Assigner:     assigner,
		Platform:     platformClient,
		SourceSystem: sourceClient,
		Resolver:     sourceClient,
		Bus:          bus,
	}, env.LocalBaseURL)

	srv := server.NewServer(
		env,
		review.NewHandler(svc, taskRepo, taskLogRepo, assigner),
		review.NewConnectServer(svc),
	)
	recorder := tasklog.NewRecorder(taskLogRepo, bus)

	slog.Info("review server configured",
		"strategy", assigner.StrategyName(),
		"reviewer_source", env.ReviewerSource,
		"storage", env.StorageEnv.Type,
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(panicerr.SafeContext("task log recorder", recorder.Run))
	if roster != nil {
		p.Go(panicerr.SafeContext("reviewer roster watcher", func(ctx context.Context) error {
			if err := roster.Watch(ctx); err != nil {
				// the roster still works without hot reload
				slog.Warn("reviewer roster watch disabled", "error", err)
			}
			return nil
		}))
	}
	p.Go(func(ctx context.Context) error {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return p.Wait()
}

func listTasks(ctx context.Context, repo task.Repository, status task.Status) error {
	tasks, err := repo.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK ID\tUSER\tSCENARIO\tSTATUS\tDOCTOR\tSOURCE\tCREATED")
	for _, t := range tasks {
		if status != "" && t.EffectiveStatus() != status {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.UserID, t.ScenarioID, t.EffectiveStatus(), t.DoctorID, t.Source, t.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func dedupeTasks(ctx context.Context, repo task.Repository) error {
	res, err := repo.Deduplicate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d duplicate task(s), %d kept\n", res.Removed, res.Kept)
	return nil
}

type dedupeReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	task.DedupResult
}

// dedupeViaServer asks the running server to deduplicate so the rewrite is
// serialized with its own store writes.
func dedupeViaServer(ctx context.Context, baseURL, apiKey string) (task.DedupResult, error) {
	client := httpjson.New("review_server", baseURL,
		httpjson.WithHeader("X-API-Key", apiKey),
		httpjson.WithRetry(retry.Policy{MaxAttempts: 1}),
	)
	var out dedupeReply
	err := client.Post(ctx, httpjson.Call{
		Operation: "deduplicate",
		Path:      review.DeduplicatePath,
		Body:      struct{}{},
		Out:       &out,
		Accept: func() error {
			if !out.Success {
				return errors.New(out.Message)
			}
			return nil
		},
	})
	if err != nil {
		return task.DedupResult{}, fmt.Errorf("%w (use --offline with the server stopped)", err)
	}
	return out.DedupResult, nil
}

func showTask(ctx context.Context, repo task.Repository, logs tasklog.Repository, id string) error {
	t, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	entries, _, err := logs.List(ctx, id, 0, 0)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Task *task.Task         `json:"task"`
		Logs []*tasklog.TaskLog `json:"logs"`
	}{t, entries})
}
