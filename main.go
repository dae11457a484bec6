package main

import (
	"context"
	"database/sql"
	"errors"
	"os"

	"helix/internal/api"
	"helix/internal/auth"
	"helix/internal/config"
	"helix/internal/logger"
	"helix/internal/redis"
	"helix/internal/service/ai"
	"helix/internal/service/catalog"
	"helix/internal/service/chat"
	"helix/internal/service/conversation"
	"helix/internal/storage"
	"helix/internal/store"
	"helix/internal/supabase"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// a missing .env is fine; the process environment still applies
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("HELIX_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Init(cfg.BasicConfig.LogLevel, cfg.BasicConfig.LogFormat)

	ctx := context.Background()
	st, db, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.BasicConfig.Store).Msg("open store")
	}
	if db != nil {
		defer db.Close()
	}

	var public *supabase.Client
	if cfg.Supabase.URL != "" && cfg.Supabase.AnonKey != "" {
		public = supabase.New(cfg.Supabase.URL, cfg.Supabase.AnonKey)
	}
	verifier := auth.NewVerifier(public, cfg.Supabase.JWTSecret)
	if cfg.Redis.Host != "" {
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("token cache disabled")
		} else {
			defer rdb.Close()
			verifier.WithCache(rdb, auth.DefaultCacheTTL)
		}
	}

	var completer chat.Completer
	client, err := ai.NewClient(ctx, cfg.Completion)
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		log.Warn().Msg("OPENROUTER_API_KEY not set, replies will use the fallback")
	case err != nil:
		log.Fatal().Err(err).Msg("init completion provider")
	default:
		completer = client
		log.Info().Str("provider", client.Provider()).Str("model", cfg.Completion.Model).Msg("completion provider ready")
	}

	opts := api.Options{
		Verifier: verifier,
		Supabase: cfg.Supabase,
	}
	if public != nil {
		opts.AuthHealth = public
	}
	if st != nil {
		opts.Chat = chat.NewService(st, completer)
		opts.Catalog = catalog.NewService(st)
		opts.Conversations = conversation.NewService(st)
	} else {
		log.Warn().Msg("SUPABASE_SERVICE_ROLE_KEY not set, chat requests will be rejected")
		opts.Chat = chat.NewService(nil, completer)
	}
	handlers := api.NewHandler(opts)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestID(), api.RequestLogger(), api.CORS(), api.Metrics())
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	log.Info().Str("addr", addr).Str("store", cfg.BasicConfig.Store).Msg("helix listening")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// openStore returns the configured persistence backend. The store is nil when
// the managed backend is selected without its service key.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *sql.DB, error) {
	if !cfg.UsesSQL() {
		if cfg.Supabase.URL == "" || cfg.Supabase.ServiceRoleKey == "" {
			return nil, nil, nil
		}
		return store.NewRESTStore(supabase.New(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey)), nil, nil
	}

	dbType := cfg.BasicConfig.Store
	db, err := storage.Open(dbType, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Migrate(db, dbType); err != nil {
		db.Close()
		return nil, nil, err
	}
	st, err := store.NewSQLStore(db, dbType)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if cfg.BasicConfig.SeedFile != "" {
		seed, err := store.LoadSeedFile(cfg.BasicConfig.SeedFile)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := st.Seed(ctx, seed); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Str("file", cfg.BasicConfig.SeedFile).Int("universes", len(seed.Universes)).Msg("catalog seeded")
	}
	return st, db, nil
}
