package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"loom-backend/application/indexsync"
	"loom-backend/application/ports"
	"loom-backend/application/services"
	domainconfig "loom-backend/domain/config"
	"loom-backend/infrastructure/config"
	"loom-backend/infrastructure/llm"
	"loom-backend/infrastructure/messaging"
	"loom-backend/infrastructure/messaging/eventbridge"
	dynamorepo "loom-backend/infrastructure/persistence/dynamodb"
	memoryrepo "loom-backend/infrastructure/persistence/memory"
	"loom-backend/infrastructure/search"
	"loom-backend/interfaces/http/rest"
	"loom-backend/pkg/auth"
	"loom-backend/pkg/clock"
	"loom-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	DynamicConfig *config.DynamicConfigManager
	Logger        *zap.Logger
	Repository    ports.CanvasRepository
	Publisher     ports.EventPublisher
	Generator     ports.GenerationProvider
	Search        ports.SearchIndex
	Indexer       *indexsync.Synchronizer
	Service       *services.CanvasService
	Collector     *observability.Collector
	Tracer        *observability.TracerProvider
	Validator     *auth.JWTValidator
	Router        *rest.Router
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, err
	}

	return logger, nil
}

// ProvideDynamicConfig layers hot-reloadable file configuration over
// the environment configuration. Without a configured path the manager
// still serves the static flags.
func ProvideDynamicConfig(cfg *config.Config, logger *zap.Logger) (*config.DynamicConfigManager, error) {
	return config.NewDynamicConfigManager(cfg, cfg.DynamicConfigPath, logger.Named("config"))
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// usesAWS reports whether the deployment should talk to real AWS
// services rather than in-process substitutes.
func usesAWS(cfg *config.Config) bool {
	return cfg.IsLambda || cfg.Environment == "production"
}

// ProvideCanvasRepository selects the canvas store for the deployment:
// DynamoDB in production and Lambda, in-memory everywhere else. With
// tracing enabled every repository call gets its own span.
func ProvideCanvasRepository(client *awsdynamodb.Client, cfg *config.Config, tracer *observability.TracerProvider, logger *zap.Logger) ports.CanvasRepository {
	var repo ports.CanvasRepository
	if usesAWS(cfg) {
		repo = dynamorepo.NewCanvasRepository(client, cfg.DynamoDBTable, cfg.IndexName, logger.Named("repository"))
	} else {
		repo = memoryrepo.NewCanvasRepository()
	}
	if tracer != nil {
		repo = observability.TraceRepository(repo, tracer.Tracer())
	}
	return repo
}

// ProvideEventPublisher selects the event publisher: EventBridge in
// production and Lambda, the in-process publisher everywhere else. With
// metrics enabled the publisher is wrapped so the event stream feeds
// the collector.
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) ports.EventPublisher {
	var publisher ports.EventPublisher
	if usesAWS(cfg) {
		publisher = eventbridge.NewPublisher(client, cfg.EventBusName, logger.Named("events"))
	} else {
		publisher = messaging.NewLocalPublisher(logger.Named("events"))
	}
	return messaging.NewInstrumentedPublisher(publisher, collector)
}

// ProvideGenerationProvider selects the completion provider. Without an
// API key the deterministic stub keeps the whole canvas flow usable.
func ProvideGenerationProvider(cfg *config.Config, logger *zap.Logger) ports.GenerationProvider {
	if cfg.OpenAIAPIKey != "" {
		return llm.NewOpenAIProvider(cfg, logger.Named("llm"))
	}
	return llm.NewStubProvider(logger.Named("llm"))
}

// ProvideSearchStores creates the search index and embedding store.
// Weaviate serves both when indexing is enabled; otherwise the no-op
// store swallows sync traffic.
func ProvideSearchStores(cfg *config.Config, logger *zap.Logger) (ports.SearchIndex, ports.EmbeddingStore, error) {
	if cfg.Features.EnableSearchIndexing && cfg.WeaviateHost != "" {
		store, err := search.NewWeaviateStore(cfg, logger.Named("search"))
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
	store := search.NewNoopStore(logger.Named("search"))
	return store, store, nil
}

// ProvideSynchronizer creates the search index synchronizer. The caller
// owns its lifecycle via Container.Start and Container.Shutdown.
func ProvideSynchronizer(index ports.SearchIndex, embeddings ports.EmbeddingStore, cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *indexsync.Synchronizer {
	synchronizer := indexsync.NewSynchronizer(index, embeddings, cfg.IndexQueueSize, logger.Named("indexsync"))
	if collector != nil {
		synchronizer.SetObserver(func(operation, status string) {
			collector.IndexSyncOps.WithLabelValues(operation, status).Inc()
		})
	}
	return synchronizer
}

// ProvideDomainConfig exposes the domain tuning profile selected by the
// environment.
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	return cfg.Domain
}

// ProvideClock supplies the wall clock
func ProvideClock() clock.Clock {
	return clock.System()
}

// ProvideCanvasService creates the canvas service
func ProvideCanvasService(
	repo ports.CanvasRepository,
	publisher ports.EventPublisher,
	generator ports.GenerationProvider,
	index ports.SearchIndex,
	indexer *indexsync.Synchronizer,
	domainCfg *domainconfig.DomainConfig,
	clk clock.Clock,
	logger *zap.Logger,
) *services.CanvasService {
	return services.NewCanvasService(repo, publisher, generator, index, indexer, domainCfg, clk, logger.Named("canvas"))
}

// ProvideCollector creates the metrics collector, or nil when metrics
// are disabled.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector("loom")
}

// ProvideTracerProvider initializes tracing, or returns nil when
// tracing is disabled.
func ProvideTracerProvider(cfg *config.Config) (*observability.TracerProvider, error) {
	if !cfg.EnableTracing {
		return nil, nil
	}
	return observability.InitTracing("loom-backend", cfg.Environment, cfg.TracingEndpoint)
}

// ProvideJWTValidator creates the JWT validator, or nil when no secret
// is configured so the API runs unauthenticated.
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	if cfg.JWTSecret == "" {
		return nil, nil
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
	})
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	service *services.CanvasService,
	validator *auth.JWTValidator,
	collector *observability.Collector,
	features *config.DynamicConfigManager,
	cfg *config.Config,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(service, validator, collector, features, cfg, logger.Named("http"))
}

// Start launches the container's background workers.
func (c *Container) Start(ctx context.Context) {
	if store, ok := c.Search.(*search.WeaviateStore); ok {
		if err := store.EnsureSchema(ctx); err != nil {
			c.Logger.Warn("Search schema setup failed", zap.Error(err))
		}
	}
	if c.Collector != nil {
		c.Collector.RegisterCanvasGauges(func() []observability.CanvasGauges {
			engines := c.Service.Gauges()
			samples := make([]observability.CanvasGauges, len(engines))
			for i, gauges := range engines {
				samples[i] = observability.CanvasGauges(gauges)
			}
			return samples
		})
	}
	c.Indexer.Start(ctx)
	if err := c.DynamicConfig.Start(); err != nil {
		c.Logger.Warn("Dynamic config watcher failed to start", zap.Error(err))
	}
	c.Logger.Info("Container started",
		zap.String("environment", c.Config.Environment),
		zap.Bool("metrics", c.Collector != nil),
		zap.Bool("tracing", c.Tracer != nil),
		zap.Bool("auth", c.Validator != nil))
}

// Shutdown drains background workers and flushes telemetry.
func (c *Container) Shutdown(ctx context.Context) {
	c.DynamicConfig.Stop()
	c.Indexer.Stop()
	if c.Tracer != nil {
		if err := c.Tracer.Shutdown(ctx); err != nil {
			c.Logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}
	c.Logger.Sync()
}
