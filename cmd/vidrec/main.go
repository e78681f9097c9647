// Command vidrec 从配置的存储生成一次推荐（或相似列表），以 JSON 输出到 stdout。
//
//	vidrec -config vidrec.yaml -user alice -mode home -limit 20
//	vidrec -mode upnext -seed 42@tube.example
//	vidrec -similar 42@tube.example -limit 10
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/rushteam/vidrec/config"
	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/feast"
	"github.com/rushteam/vidrec/pkg/logging"
	"github.com/rushteam/vidrec/recommender"
	"github.com/rushteam/vidrec/similar"
	"github.com/rushteam/vidrec/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "settings YAML file (optional, env VIDREC_* overrides)")
		userID     = flag.String("user", "", "user id; empty means guest")
		mode       = flag.String("mode", config.DefaultMode, "recommendation mode (home, upnext)")
		limit      = flag.Int("limit", 0, "number of items; 0 uses the profile batch size")
		seedKey    = flag.String("seed", "", "currently playing video as <video_id>@<instance>")
		similarKey = flag.String("similar", "", "print videos similar to <video_id>@<instance> and exit")
		refresh    = flag.Bool("refresh", false, "bypass the similarity cache")
		timeout    = flag.Duration("timeout", 5*time.Second, "request timeout")
	)
	flag.Parse()

	if err := run(*configPath, *userID, *mode, *limit, *seedKey, *similarKey, *refresh, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "vidrec:", err)
		os.Exit(1)
	}
}

func run(configPath, userID, mode string, limit int, seedKey, similarKey string, refresh bool, timeout time.Duration) error {
	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return err
	}
	log := logging.New(settings.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenSQL(ctx, settings.SQL.Driver, settings.SQL.DSN, settings.SQL.MaxOpenConns)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	app, closeAll, err := build(ctx, settings, db, log)
	if err != nil {
		return err
	}
	defer closeAll()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if similarKey != "" {
		seed, ok := core.ParseLikeKey(similarKey)
		if !ok {
			return fmt.Errorf("invalid -similar %q, want <video_id>@<instance>", similarKey)
		}
		policy := similar.DefaultPolicy()
		policy.RefreshCache = refresh
		if limit <= 0 {
			limit = 20
		}
		items, err := app.GetSimilarCandidates(ctx, seed, limit, policy)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, items)
	}

	req := recommender.Request{UserID: userID, Mode: mode, Limit: limit, RefreshCache: refresh}
	if seedKey != "" {
		seed, ok := core.ParseLikeKey(seedKey)
		if !ok {
			return fmt.Errorf("invalid -seed %q, want <video_id>@<instance>", seedKey)
		}
		req.Seed = &seed
	}
	res, err := app.GenerateRecommendations(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, res)
}

// build 按配置装配存储与 Engine；返回的 close 函数释放缓存后端。
func build(ctx context.Context, s *config.Settings, db *sqlx.DB, log zerolog.Logger) (*recommender.Engine, func(), error) {
	sqlStore := store.NewSQLStore(db)

	items, err := sqlStore.IndexItems(ctx)
	if err != nil {
		return nil, nil, err
	}
	mem := store.NewMemoryVectorIndex()
	if err := mem.Build(items); err != nil {
		return nil, nil, err
	}
	log.Info().Int("vectors", mem.Len()).Msg("vector index loaded")

	var index core.VectorIndex = mem
	if s.Breaker.Enabled {
		index = store.NewBreakerIndex(mem, store.BreakerConfig{
			Name:        "vector_index",
			MaxFailures: s.Breaker.MaxFailures,
			Timeout:     s.Breaker.Timeout,
			Interval:    s.Breaker.Interval,
		}, log)
	}

	cache, closeCache, err := openCache(ctx, s.Cache, db)
	if err != nil {
		return nil, nil, err
	}

	var (
		catalog  core.CatalogStore  = sqlStore
		metadata core.MetadataStore = sqlStore
	)
	closeFeast := func() {}
	if s.Feast.Enabled {
		client, err := feast.NewGrpcClient(s.Feast.Host, s.Feast.Port, s.Feast.Project, feast.WithTimeout(s.Feast.Timeout()))
		if err != nil {
			closeCache()
			return nil, nil, err
		}
		closeFeast = func() { _ = client.Close() }
		eng := feast.NewEngagement(client, feast.EngagementConfig{
			Project:      s.Feast.Project,
			EntityKey:    s.Feast.EntityKey,
			ViewsFeature: s.Feast.ViewsFeature,
			LikesFeature: s.Feast.LikesFeature,
		}, log)
		catalog = &feast.CatalogStore{Next: sqlStore, Engagement: eng}
		metadata = &feast.MetadataStore{Next: sqlStore, Engagement: eng}
	}
	closeAll := func() {
		closeFeast()
		closeCache()
	}

	opts := []recommender.Option{
		recommender.WithLogger(log),
		recommender.WithMaxRecentLikes(s.Engine.MaxRecentLikes),
		recommender.WithSimilarConfig(similar.Config{ComputeK: s.Similar.ComputeK, MaxAge: s.Cache.MaxAge}),
	}
	if s.Engine.ProfilesPath != "" {
		table, err := config.LoadTable(s.Engine.ProfilesPath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opts = append(opts, recommender.WithProfiles(table))
	}

	engine, err := recommender.New(recommender.Stores{
		Likes:      sqlStore,
		Catalog:    catalog,
		Embeddings: sqlStore,
		Metadata:   metadata,
		Index:      index,
		Cache:      cache,
	}, opts...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return engine, closeAll, nil
}

func openCache(ctx context.Context, c config.CacheSettings, db *sqlx.DB) (core.SimilarityCache, func(), error) {
	switch c.Backend {
	case "sql":
		return store.NewSQLCache(db), func() {}, nil
	case "redis":
		rc, err := store.DialRedisCache(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB, c.KeyPrefix, c.TTL)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { _ = rc.Close() }, nil
	case "badger":
		bc, err := store.OpenBadgerCache(c.BadgerPath, c.KeyPrefix, c.TTL)
		if err != nil {
			return nil, nil, err
		}
		return bc, func() { _ = bc.Close() }, nil
	default:
		return store.NewMemoryCache(), func() {}, nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
