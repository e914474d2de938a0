package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
	"github.com/Mindburn-Labs/archgate/pkg/artifacts"
	"github.com/Mindburn-Labs/archgate/pkg/canonicalize"
	"github.com/Mindburn-Labs/archgate/pkg/config"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
	"github.com/Mindburn-Labs/archgate/pkg/metrics"
	"github.com/Mindburn-Labs/archgate/pkg/observability"
	"github.com/Mindburn-Labs/archgate/pkg/signature"
)

// app carries configuration and lazily built collaborators shared by
// subcommands.
type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	obs     *observability.Provider
	metrics *metrics.Metrics
	closers []func()
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{cfg: config.Load(), stdout: stdout, stderr: stderr, logger: slog.Default()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "archgate",
		Short:         "Architecture governance gate",
		Long:          "archgate checks a change against declared architecture constraints and the approved architecture signature, and manages the Architecture Change Requests that approve drift.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "log format (text, json)")
	pf.StringVar(&a.cfg.ConstraintsPath, "constraints", a.cfg.ConstraintsPath, "constraint catalog (JSON or JSONC)")
	pf.StringVar(&a.cfg.ArtifactStore, "artifact-store", a.cfg.ArtifactStore, "signature storage backend (fs, s3, gcs, memory)")
	pf.StringVar(&a.cfg.ArtifactDir, "artifact-dir", a.cfg.ArtifactDir, "directory for fs signature storage")
	pf.StringVar(&a.cfg.ACRStore, "acr-store", a.cfg.ACRStore, "ACR storage backend (sqlite, postgres, memory)")
	pf.StringVar(&a.cfg.SQLitePath, "sqlite-path", a.cfg.SQLitePath, "SQLite database for ACRs")

	root.AddCommand(
		newEvaluateCmd(a),
		newSignatureCmd(a),
		newConstraintsCmd(a),
		newACRCmd(a),
		newServeCmd(a),
		newTokenCmd(a),
		newPackCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	logger, err := newLogger(a.stderr, a.cfg.LogLevel, a.cfg.LogFormat)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)

	obsCfg := observability.DefaultConfig()
	if a.cfg.OTLPEndpoint != "" {
		obsCfg.Enabled = true
		obsCfg.OTLPEndpoint = a.cfg.OTLPEndpoint
		obsCfg.Insecure = true
	}
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	a.obs = obs
	a.metrics = metrics.New()
	a.closers = append(a.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("observability shutdown failed", "error", err)
		}
	})
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newLogger builds the process logger from a level name and a format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected text or json)", format)
	}
}

func (a *app) registry() *constraints.Registry {
	return constraints.NewFileRegistry(a.cfg.ConstraintsPath)
}

func (a *app) signatures(ctx context.Context) (*signature.Store, error) {
	blobs, err := artifacts.NewStore(ctx, artifacts.Config{
		Type:     artifacts.StoreType(a.cfg.ArtifactStore),
		Dir:      a.cfg.ArtifactDir,
		Bucket:   a.cfg.ArtifactBucket,
		Region:   a.cfg.ArtifactRegion,
		Endpoint: a.cfg.ArtifactEndpoint,
		Prefix:   a.cfg.ArtifactPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}
	return signature.NewStore(blobs), nil
}

func engine(algorithm string) (*signature.Engine, error) {
	alg, err := canonicalize.ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	return signature.NewEngine(signature.WithAlgorithm(alg)), nil
}

// acrStore opens the configured ACR store.
func (a *app) acrStore(ctx context.Context) (acr.Store, error) {
	switch a.cfg.ACRStore {
	case "memory":
		return acr.NewMemoryStore(), nil
	case "", "sqlite":
		if dir := filepath.Dir(a.cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		db, err := acr.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		return acr.NewSQLiteStore(ctx, db)
	case "postgres":
		if a.cfg.DatabaseURL == "" {
			return nil, errors.New("ARCHGATE_DATABASE_URL is required for the postgres ACR store")
		}
		db, err := sql.Open("postgres", a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		s := acr.NewPostgresStore(db)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported ACR store %q", a.cfg.ACRStore)
	}
}

// workflow builds the ACR workflow with the configured locker and notifiers.
func (a *app) workflow(ctx context.Context) (*acr.Workflow, error) {
	store, err := a.acrStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := []acr.Option{acr.WithTracker(a.obs)}
	if a.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = client.Close() })
		opts = append(opts, acr.WithLocker(acr.NewRedisLocker(client, 0)))
	}

	notifiers := acr.Notifiers{acr.NotifierFunc(a.recordACREvent)}
	if a.cfg.NATSURL != "" {
		n, conn, err := acr.ConnectNATS(a.cfg.NATSURL, a.cfg.NATSSubjectPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = conn.Drain() })
		notifiers = append(notifiers, n)
	}
	opts = append(opts, acr.WithNotifier(notifiers))
	return acr.NewWorkflow(store, opts...), nil
}

func (a *app) recordACREvent(_ context.Context, ev acr.Event) error {
	switch ev.Type {
	case acr.EventCreated:
		a.metrics.ACRCreated()
	case acr.EventReviewed:
		a.metrics.ACRDecided(string(ev.ACR.Status))
	}
	return nil
}
