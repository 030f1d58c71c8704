package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/artifacts"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/audit"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/authz"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/config"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/custody"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/observability"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/sequencer"
	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/store/ledger"
	"github.com/redis/go-redis/v9"
)

// runtime is an opened ledger with the engine wired over it.
type runtime struct {
	store     *ledger.SQLStore
	engine    *custody.Engine
	telemetry *observability.Provider
	redis     *redis.Client
}

func openStore(ctx context.Context, cfg *config.Config) (*ledger.SQLStore, error) {
	var (
		db  *sql.DB
		err error
		d   ledger.Dialect
	)
	if cfg.LiteMode() {
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		slog.InfoContext(ctx, "lite mode", "sqlite", cfg.SQLitePath())
		db, err = sql.Open("sqlite", ledger.SQLiteDSN(cfg.SQLitePath()))
		d = ledger.SQLite
	} else {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		d = ledger.Postgres
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := ledger.NewSQLStore(db, d)
	if err := s.Init(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to init ledger schema: %w", err)
	}
	return s, nil
}

func loadTables(path string) (authz.Tables, error) {
	if path == "" {
		return authz.DefaultTables(), nil
	}
	return authz.LoadPolicy(path)
}

func openRuntime(ctx context.Context, cfg *config.Config, auditOut io.Writer) (_ *runtime, err error) {
	tables, err := loadTables(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	az := authz.NewEngine(tables)

	rt := &runtime{}
	defer func() {
		if err != nil {
			rt.Close(ctx)
		}
	}()

	if rt.store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	if rt.telemetry, err = observability.New(ctx, cfg.Telemetry); err != nil {
		return nil, fmt.Errorf("failed to start telemetry: %w", err)
	}

	var seq sequencer.Sequencer
	if cfg.RedisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		shared := sequencer.NewRedis(rt.redis, "evidentia")
		max, err := rt.store.MaxSequence(ctx)
		if err != nil {
			return nil, err
		}
		if err := shared.Seed(ctx, max); err != nil {
			return nil, fmt.Errorf("failed to seed redis sequencer: %w", err)
		}
		seq = shared
	} else {
		local, err := sequencer.NewLocalFromStore(ctx, rt.store)
		if err != nil {
			return nil, err
		}
		seq = local
	}

	rt.engine = custody.NewEngine(rt.store, az, seq).
		WithAccessWindow(cfg.AccessWindow).
		WithPendingTTL(cfg.PendingTTL).
		WithObservability(rt.telemetry).
		WithAuditLog(audit.NewJSONLogger(auditOut)).
		WithReports(audit.NewGenerator(rt.store, az).WithAlgorithm(cfg.Digest))

	sink, err := artifacts.NewStore(ctx, cfg.Artifacts)
	if err != nil {
		slog.WarnContext(ctx, "artifact store unavailable, export disabled", "error", err)
	} else {
		rt.engine.WithArtifactStore(sink)
	}
	return rt, nil
}

func (rt *runtime) Close(ctx context.Context) {
	var errs []error
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		slog.WarnContext(ctx, "shutdown", "error", err)
	}
}
