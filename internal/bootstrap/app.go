package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"vnnews-clustering/internal/ai"
	"vnnews-clustering/internal/app"
	"vnnews-clustering/internal/cache"
	"vnnews-clustering/internal/clustering"
	"vnnews-clustering/internal/config"
	"vnnews-clustering/internal/corpus"
	"vnnews-clustering/internal/embedding"
	"vnnews-clustering/internal/labeling"
	"vnnews-clustering/internal/model"
	mysqlClient "vnnews-clustering/internal/platform/mysql"
	rabbitmqClient "vnnews-clustering/internal/platform/rabbitmq"
	redisClient "vnnews-clustering/internal/platform/redis"
	sqliteClient "vnnews-clustering/internal/platform/sqlite"
	"vnnews-clustering/internal/repository"
	"vnnews-clustering/internal/worker"
)

// App holds the process-wide services. Optional backends are nil when
// disabled in the configuration.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection
	SQLite *sql.DB

	Articles    *repository.ArticleRepository
	Runs        *repository.ClusterRunRepository
	Clustering  *app.ClusteringService
	Admin       *app.AdminService
	RefitWorker *worker.RefitWorker

	embedderCloser io.Closer
	StartedAt      time.Time
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	if cfg.MySQL.Enabled {
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN(), a.Logger)
		if err != nil {
			return err
		}
		a.MySQL = db
		if err := db.AutoMigrate(&model.Article{}, &model.ClusterRun{}); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		a.Articles = repository.NewArticleRepository(db)
		a.Runs = repository.NewClusterRunRepository(db)
	}

	var responses app.ResponseCache
	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		a.Redis = client
		responses = cache.NewClusterCache(client, config.MustDuration(cfg.Redis.CacheTTL))
	}

	var publisher app.RefitPublisher
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.RefitQueue)
		if err != nil {
			return err
		}
		a.MQConn = conn
		publisher = rabbitmqClient.NewRefitPublisher(conn, cfg.RabbitMQ.RefitQueue)
	}

	embedder, err := a.newEmbedder(ctx)
	if err != nil {
		return err
	}
	labeler, err := labeling.NewOpenAILabeler(labeling.OpenAIConfig{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   config.MustDuration(cfg.LLM.Timeout),
	})
	if err != nil {
		return err
	}
	if !labeler.Available() {
		a.Logger.Warn("no llm api key configured, cluster names use the keyword table")
	}

	source, err := a.corpusSource()
	if err != nil {
		return err
	}
	strategy, err := clustering.ParseStrategy(cfg.Clustering.Strategy)
	if err != nil {
		return err
	}

	deps := app.ClusteringDeps{
		Source:   source,
		Embedder: embedder,
		Labeler:  labeler,
		Cache:    responses,
		Logger:   a.Logger,
	}
	if a.Runs != nil {
		deps.Runs = a.Runs
	}
	a.Clustering = app.NewClusteringService(deps, app.ClusteringOptions{
		Strategy:       strategy,
		CandidateK:     cfg.CandidateK(),
		Seed:           cfg.Clustering.Seed,
		SampleSeed:     cfg.Clustering.SampleSeed,
		MinClusterSize: cfg.Clustering.MinClusterSize,
		LabelMaxWords:  cfg.Clustering.LabelMaxWords,
		LabelArticles:  cfg.Clustering.LabelArticles,
		WarmUpClusters: cfg.Clustering.WarmUpClusters,
		WarmUpLimit:    cfg.Clustering.WarmUpLimit,
	})

	a.Admin = app.NewAdminService(
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPasswordHash,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
		publisher,
		a.Clustering,
	)
	if a.MQConn != nil {
		a.RefitWorker = worker.NewRefitWorker(a.MQConn, a.Clustering, cfg.RabbitMQ.RefitQueue, a.Logger)
	}
	return nil
}

func (a *App) newEmbedder(ctx context.Context) (embedding.Embedder, error) {
	cfg := a.Config.Embedding
	var embedder embedding.Embedder
	switch cfg.Provider {
	case "api":
		embedder = embedding.NewAPIEmbedder(ai.EmbeddingConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}, cfg.BatchSize)
	case "onnx":
		onnx := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			SharedLibPath: cfg.ONNXSharedLibPath,
			MaxLength:     cfg.MaxLength,
			BatchSize:     cfg.BatchSize,
			Prefix:        cfg.Prefix,
		})
		a.embedderCloser = onnx
		embedder = onnx
	default:
		return nil, fmt.Errorf("%w: unknown embedding.provider %q", config.ErrInvalidConfig, cfg.Provider)
	}

	if !a.Config.SQLite.Enabled {
		return embedder, nil
	}
	db, err := sqliteClient.New(ctx, a.Config.SQLite.Path)
	if err != nil {
		return nil, err
	}
	a.SQLite = db
	store := embedding.NewSQLiteStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return embedding.NewCached(embedder, store, a.Logger), nil
}

func (a *App) corpusSource() (corpus.Source, error) {
	switch a.Config.Corpus.Source {
	case "json":
		return corpus.NewJSONFile(a.Config.Corpus.Path), nil
	case "mysql":
		if a.Articles == nil {
			return nil, fmt.Errorf("%w: corpus.source mysql needs mysql.enabled", config.ErrInvalidConfig)
		}
		return corpus.NewDatabase(a.Articles), nil
	default:
		return nil, fmt.Errorf("%w: unknown corpus.source %q", config.ErrInvalidConfig, a.Config.Corpus.Source)
	}
}

// StartWorkers starts queue consumers, if a broker is configured.
func (a *App) StartWorkers(ctx context.Context) error {
	if a.RefitWorker == nil {
		return nil
	}
	if err := a.RefitWorker.Start(ctx); err != nil {
		return fmt.Errorf("start refit worker failed: %w", err)
	}
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.RefitWorker != nil {
		a.RefitWorker.Close()
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.MQConn != nil {
		errs = append(errs, a.MQConn.Close())
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if a.SQLite != nil {
		errs = append(errs, a.SQLite.Close())
	}
	if a.embedderCloser != nil {
		errs = append(errs, a.embedderCloser.Close())
	}
	return errors.Join(errs...)
}
