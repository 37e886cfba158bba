package container

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"familytree-backend/internal/config"
	familyHandler "familytree-backend/internal/domains/family/handler"
	familyRepo "familytree-backend/internal/domains/family/repository"
	familyService "familytree-backend/internal/domains/family/service"
	"familytree-backend/internal/domains/permission"
	infraCache "familytree-backend/internal/infrastructure/cache"
	"familytree-backend/internal/infrastructure/database"
	"familytree-backend/internal/infrastructure/queue"
	"familytree-backend/pkg/cache"
	"familytree-backend/pkg/jwt"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container chứa TẤT CẢ dependencies của application
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	Config      *config.Config
	DB          *database.PostgresDB // nil khi STORE_DRIVER=memory
	Cache       cache.Cache
	AsynqClient *asynq.Client
	JWTManager  *jwt.Manager

	// ========================================
	// REPOSITORY LAYER
	// ========================================
	FamilyStore familyRepo.Store

	// ========================================
	// SERVICE LAYER
	// ========================================
	Resolver      *permission.Resolver
	FamilyService familyService.ServiceInterface

	// ========================================
	// HANDLER LAYER
	// ========================================
	FamilyHandler *familyHandler.Handler

	redisCache *infraCache.RedisCache
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer tạo và initialize toàn bộ dependency graph
//
// Thứ tự initialization:
// 1. Config
// 2. Infrastructure (DB, Cache, Queue)
// 3. Repositories
// 4. Services
// 5. Handlers
func NewContainer() (*Container, error) {
	log.Info().Msg("🔧 Initializing DI Container...")
	c := &Container{}

	// ========================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Info().Str("env", cfg.App.Environment).Str("store", cfg.App.StoreDriver).Msg("✅ Config loaded")

	// ========================================
	// STEP 2: INITIALIZE DATABASE
	// ========================================
	if cfg.App.StoreDriver == "postgres" {
		if err := c.initDatabase(); err != nil {
			return nil, err
		}
	}

	// ========================================
	// STEP 3: INITIALIZE CACHE + QUEUE
	// ========================================
	c.redisCache = infraCache.NewRedisCache(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err := c.redisCache.Connect(context.Background()); err != nil {
		// Redis failure không critical cho API: cache chỉ là read-through
		log.Warn().Err(err).Msg("⚠️  Redis connection failed (non-critical)")
	}
	c.Cache = c.redisCache
	c.AsynqClient = asynq.NewClient(RedisOpt(cfg))
	c.JWTManager = jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// ========================================
	// STEP 4-6: REPOSITORIES, SERVICES, HANDLERS
	// ========================================
	c.initRepositories()
	c.initServices()
	c.initHandlers()

	log.Info().Msg("🎉 DI Container initialized successfully")
	return c, nil
}

// RedisOpt - asynq dùng chung Redis với cache
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// ========================================
// PRIVATE INITIALIZATION METHODS
// ========================================

func (c *Container) initDatabase() error {
	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}

	db := database.NewPostgresDB(dbConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	c.DB = db
	log.Info().Msg("✅ Database connected")
	return nil
}

func (c *Container) initRepositories() {
	if c.DB != nil {
		c.FamilyStore = familyRepo.NewPostgresStore(c.DB.Pool, c.Config.Batch.StatementTimeout)
		return
	}
	log.Warn().Msg("⚠️  Using in-memory family store, data is lost on restart")
	c.FamilyStore = familyRepo.NewMemoryStore()
}

func (c *Container) initServices() {
	c.Resolver = permission.NewResolver()
	c.FamilyService = familyService.NewService(
		c.FamilyStore,
		c.Resolver,
		c.Cache,
		queue.NewPublisher(c.AsynqClient),
		familyService.Config{
			MaxBatchOperations: c.Config.Batch.MaxOperations,
			ReadCacheTTL:       c.Config.Batch.ReadCacheTTL,
			GroupListLimit:     c.Config.Batch.GroupListLimit,
		},
	)
}

func (c *Container) initHandlers() {
	c.FamilyHandler = familyHandler.NewHandler(c.FamilyService)
}

// HealthCheck - DB (nếu có) và Redis
func (c *Container) HealthCheck(ctx context.Context) map[string]string {
	status := map[string]string{"database": "disabled", "redis": "ok"}
	if c.DB != nil {
		status["database"] = "ok"
		if err := c.DB.HealthCheck(ctx); err != nil {
			status["database"] = err.Error()
		}
	}
	if err := c.Cache.Ping(ctx); err != nil {
		status["redis"] = err.Error()
	}
	return status
}

// Cleanup dọn dẹp resources khi shutdown
func (c *Container) Cleanup() {
	log.Info().Msg("🧹 Cleaning up container resources...")

	if c.AsynqClient != nil {
		if err := c.AsynqClient.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️  Failed to close asynq client")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.redisCache != nil {
		if err := c.redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️  Failed to close Redis")
		}
	}

	log.Info().Msg("✅ Container cleanup completed")
}
