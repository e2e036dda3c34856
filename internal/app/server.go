// internal/app/server.go
package app

import (
	"context"
	"fmt"

	"questa-service/internal/account"
	"questa-service/internal/config"
	"questa-service/internal/db"
	"questa-service/internal/events"
	authHandler "questa-service/internal/handlers/auth"
	profileHandler "questa-service/internal/handlers/profile"
	wsHandler "questa-service/internal/handlers/websocket"
	"questa-service/internal/middleware"
	"questa-service/internal/pkg/jwt"
	"questa-service/internal/pkg/session"
	"questa-service/internal/provider/local"
	"questa-service/internal/repository/postgres"
	"questa-service/internal/service/email"
	"questa-service/internal/storage"
	"questa-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	pool        *pgxpool.Pool
	redisClient *redis.Client
	registry    *account.Registry
	broker      *events.Broker
	hubCancel   context.CancelFunc
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool

	if err := db.Migrate(s.cfg.DatabaseURL, s.cfg.MigrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.redisClient = redisClient
	logger.Info("connected to redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT & sessions -----
	jwtManager, err := jwt.NewManager(jwt.Config{
		Secret:   s.cfg.JWTSecret,
		Issuer:   s.cfg.JWTIssuer,
		Audience: s.cfg.JWTAudience,
		TTL:      s.cfg.JWTTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to build JWT manager: %w", err)
	}
	sessionStore := session.NewStore(redisClient)

	// ----- Email -----
	emailSender := email.NewEmailSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
		logger,
	)

	// ----- Repositories -----
	authRepo := postgres.NewAuthRepository(pool)
	profileRepo := postgres.NewProfileRepository(pool)

	// ----- Avatar bucket -----
	bucket, err := storage.NewAvatarBucket(s.cfg.AvatarDir, s.cfg.AvatarBaseURL)
	if err != nil {
		return fmt.Errorf("failed to open avatar bucket: %w", err)
	}

	// ----- Auth events & provider -----
	broker := events.NewBroker(logger)
	s.broker = broker

	provider := local.NewProvider(
		authRepo,
		sessionStore,
		jwtManager,
		broker,
		emailSender,
		redisClient,
		s.cfg.PublicURL,
		logger,
	)

	// ----- WebSocket hub -----
	hub := websocket.NewHub(jwtManager, sessionStore, logger)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	s.hubCancel = hubCancel
	go hub.Run(hubCtx)

	// ----- Account registry -----
	registry := account.NewRegistry(account.RegistryConfig{
		Provider: provider,
		Profiles: profileRepo,
		Broker:   broker,
		NotifierFor: func(identityID string) account.Notifier {
			return websocket.NewHubNotifier(hub, identityID)
		},
		NavigatorFor: func(identityID string) account.Navigator {
			return websocket.NewHubNavigator(hub, identityID)
		},
		Logger:             logger,
		ConfirmRedirectURL: s.cfg.ConfirmRedirectURL,
	})
	s.registry = registry

	// ----- Handlers -----
	authHandlerInst := authHandler.NewAuthHandler(
		provider, profileRepo, registry, hub, logger, s.cfg.ConfirmRedirectURL)
	profileHandlerInst := profileHandler.NewProfileHandler(
		registry, profileRepo, bucket, logger)
	wsHandlerInst := wsHandler.NewWebSocketHandler(hub, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, sessionStore)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		AuthHandler:    authHandlerInst,
		ProfileHandler: profileHandlerInst,
		WSHandler:      wsHandlerInst,
		AuthMiddleware: authMiddleware,
		AvatarDir:      bucket.Dir(),
	}
	SetupRouter(s.engine, logger, handlers)

	logger.Info("server starting", zap.String("addr", s.cfg.HTTPAddr))
	return s.engine.Run(s.cfg.HTTPAddr)
}

// Shutdown tears down live managers and closes shared resources.
func (s *Server) Shutdown(ctx context.Context) {
	if s.registry != nil {
		s.registry.Shutdown()
	}
	if s.broker != nil {
		s.broker.Close()
	}
	if s.hubCancel != nil {
		s.hubCancel()
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.logger != nil {
		s.logger.Sync()
	}
}
