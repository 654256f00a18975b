package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/technosupport/ts-vision-core/internal/attribute"
	"github.com/technosupport/ts-vision-core/internal/behavior"
	"github.com/technosupport/ts-vision-core/internal/config"
	"github.com/technosupport/ts-vision-core/internal/crypto"
	"github.com/technosupport/ts-vision-core/internal/eventsink"
	"github.com/technosupport/ts-vision-core/internal/identity"
	"github.com/technosupport/ts-vision-core/internal/manager"
	"github.com/technosupport/ts-vision-core/internal/store"
)

func openStore(ctx context.Context) (*sql.DB, *store.PostgresStore, error) {
	db, err := sql.Open("pgx", dbDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	if err := store.Migrate(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	kr := crypto.NewKeyring()
	if err := kr.LoadFromEnv(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("load master keyring: %w", err)
	}

	return db, store.NewPostgresStore(db, kr), nil
}

func dbDSN() string {
	if dsn := envOr("DATABASE_URL", ""); dsn != "" {
		return dsn
	}
	host := envOr("DB_HOST", "localhost")
	port := envOr("DB_PORT", "5432")
	user := envOr("DB_USER", "vision")
	pass := envOr("DB_PASSWORD", "")
	name := envOr("DB_NAME", "vision_engine")
	sslmode := envOr("DB_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, name, sslmode)
}

// buildManager assembles the Manager and its collaborators: the Redis-
// backed global identity registry, a NATS event sink (or a discarding
// sink when NATS_URL is unset, so the engine still runs standalone),
// an optional HTTP attribute provider, and a rules-file-backed analyzer
// factory.
func buildManager(rulesDir string) (*manager.Manager, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	closers = append(closers, func() { rdb.Close() })
	identityRegistry := identity.NewRegistry(identity.DefaultConfig(), identity.NewRedisStore(rdb))

	sink, sinkCloser, err := buildSink()
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if sinkCloser != nil {
		closers = append(closers, sinkCloser)
	}

	var attrProvider attribute.Provider
	if baseURL := envOr("ATTRIBUTE_SERVICE_URL", ""); baseURL != "" {
		attrProvider = attribute.NewHTTPProvider(baseURL, "vision-engine", envOr("JWT_SIGNING_KEY", "dev-secret-do-not-use-in-prod"), 0)
	}

	m := manager.New(manager.Options{
		Identity:            identityRegistry,
		Sink:                sink,
		AttributeProvider:   attrProvider,
		AnalyzerFactory:     rulesAnalyzerFactory(rulesDir),
		AppearanceModelPath: envOr("APPEARANCE_MODEL_PATH", ""),
	})
	return m, closeAll, nil
}

func buildSink() (eventsink.Sink, func(), error) {
	natsURL := envOr("NATS_URL", "")
	if natsURL == "" {
		log.Println("vision-engine: NATS_URL unset, behavior events are logged but not published")
		return discardSink{}, nil, nil
	}

	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	sink := eventsink.NewNATSSink(conn, envOr("NATS_SUBJECT", "vision.events"), 3)
	return sink, func() { conn.Close() }, nil
}

// discardSink logs events locally; it keeps the engine runnable without
// a message broker for local development and the status/reconcile CLI
// commands.
type discardSink struct{}

func (discardSink) Publish(_ context.Context, ev behavior.BehaviorEvent) error {
	log.Printf("vision-engine: event %s rule=%s camera=%s track=%d", ev.EventType, ev.RuleID, ev.CameraID, ev.LocalObjectID)
	return nil
}

// rulesAnalyzerFactory loads <rulesDir>/<cameraID>.yaml into a fresh
// Analyzer and keeps watching that file for hot reload: ROI/intrusion-rule
// documents are camera-scoped and reload without restarting the pipeline.
func rulesAnalyzerFactory(rulesDir string) manager.AnalyzerFactory {
	return func(cameraID string) (*behavior.Analyzer, error) {
		analyzer := behavior.New(behavior.Config{})
		path := filepath.Join(rulesDir, cameraID+".yaml")

		doc, err := config.LoadRulesFile(path)
		if err != nil {
			log.Printf("vision-engine: no rules file for %s (%v), starting with an empty rule set", cameraID, err)
			return analyzer, nil
		}
		if err := doc.Apply(analyzer); err != nil {
			return nil, fmt.Errorf("apply rules for %s: %w", cameraID, err)
		}

		config.WatchRulesFile(context.Background(), path, func(updated *config.RulesDocument) {
			if err := updated.Apply(analyzer); err != nil {
				log.Printf("vision-engine: reload rules for %s failed: %v", cameraID, err)
			}
		})
		return analyzer, nil
	}
}

func toVideoSources(recs []store.VideoSourceRecord) []config.VideoSource {
	out := make([]config.VideoSource, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.VideoSource)
	}
	return out
}

func envOr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
