package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	commonauth "reno_server/server/common/auth"
	"reno_server/server/common/infra/cache"
	"reno_server/server/common/infra/db"
	"reno_server/server/common/infra/object"
	fileapi "reno_server/server/fileman/api"
	"reno_server/server/fileman/repository"
	"reno_server/server/fileman/service"
)

type Config struct {
	Port          string
	JWTSecret     string
	JWTTTLMinutes int

	PostgresDSN string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	RedisAddr     string
	PublicBaseURL string
	OwnershipTTL  time.Duration
}

type Server struct {
	HTTPServer *http.Server
	DB         *pgxpool.Pool
	Redis      *redis.Client
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}

	minioClient, err := object.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("initialize minio: %w", err)
	}
	if err := object.EnsureBucket(ctx, minioClient, cfg.MinioBucket); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("ensure minio bucket: %w", err)
	}
	blobStore := object.NewStore(minioClient, cfg.MinioBucket)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = cache.NewClient(cfg.RedisAddr)
	}

	fileRepo := repository.NewFileRepository(dbPool)
	resolver := service.NewVisibilityResolver(fileRepo, redisClient, cfg.OwnershipTTL)
	fileSvc := service.NewFileService(fileRepo, blobStore, resolver, cfg.PublicBaseURL)
	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)

	h := fileapi.NewHandler(fileSvc, authSvc)
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{HTTPServer: httpServer, DB: dbPool, Redis: redisClient}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.DB != nil {
		s.DB.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	return s.HTTPServer.Shutdown(ctx)
}
