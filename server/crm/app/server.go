package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	commonauth "reno_server/server/common/auth"
	"reno_server/server/common/infra/cache"
	"reno_server/server/common/infra/db"
	"reno_server/server/common/infra/mq"
	commonlog "reno_server/server/common/log"
	crmapi "reno_server/server/crm/api"
	"reno_server/server/crm/repository"
	"reno_server/server/crm/service"
)

type Config struct {
	Port          string
	JWTSecret     string
	JWTTTLMinutes int
	PostgresDSN   string
	RedisAddr     string
	AMQPURL       string
}

type Server struct {
	HTTPServer *http.Server
	DB         *pgxpool.Pool
	Redis      *redis.Client
	AMQP       *amqp.Connection
	Publisher  *mq.Publisher

	scannerCancel context.CancelFunc
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = cache.NewClient(cfg.RedisAddr)
	}

	// Events are optional. Without a broker the service still runs,
	// it just stops notifying.
	var amqpConn *amqp.Connection
	var publisher *mq.Publisher
	if cfg.AMQPURL != "" {
		amqpConn, err = mq.NewConnection(cfg.AMQPURL)
		if err != nil {
			commonlog.Warnf("connect rabbitmq: %v", err)
		} else {
			publisher, err = mq.NewPublisher(amqpConn)
			if err != nil {
				commonlog.Warnf("open rabbitmq channel: %v", err)
			}
		}
	}

	var events service.EventPublisher
	if publisher != nil {
		events = publisher
	}
	activityRepo := repository.NewActivityRepository(dbPool)
	crmSvc := service.NewCRMService(
		repository.NewLeadRepository(dbPool),
		activityRepo,
		repository.NewDocumentRepository(dbPool),
		events,
		redisClient,
	)
	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)

	h := crmapi.NewHandler(crmSvc, authSvc)
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srv := &Server{
		HTTPServer: httpServer,
		DB:         dbPool,
		Redis:      redisClient,
		AMQP:       amqpConn,
		Publisher:  publisher,
	}

	if events != nil {
		scanner := service.NewDueScanner(activityRepo, events, time.Minute)
		scanCtx, scanCancel := context.WithCancel(context.Background())
		srv.scannerCancel = scanCancel
		go scanner.Run(scanCtx)
	}
	return srv, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.scannerCancel != nil {
		s.scannerCancel()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.AMQP != nil {
		_ = s.AMQP.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	return s.HTTPServer.Shutdown(ctx)
}
