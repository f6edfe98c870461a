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
	notifierapi "reno_server/server/notifier/api"
	"reno_server/server/notifier/repository"
	"reno_server/server/notifier/service"
)

type Config struct {
	Port          string
	JWTSecret     string
	JWTTTLMinutes int
	PostgresDSN   string
	RedisAddr     string
	AMQPURL       string
	EventQueue    string
}

type Server struct {
	HTTPServer *http.Server
	DB         *pgxpool.Pool
	Redis      *redis.Client
	AMQP       *amqp.Connection
	Hub        *service.Hub

	amqpChannel    *amqp.Channel
	consumerCancel context.CancelFunc
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}

	hub := service.NewHub()
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = cache.NewClient(cfg.RedisAddr)
		hub.UseRedis(redisClient)
	}

	notificationSvc := service.NewNotificationService(repository.NewNotificationRepository(dbPool), hub)
	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)

	h := notifierapi.NewHandler(notificationSvc, authSvc, hub)
	r := gin.Default()
	h.RegisterRoutes(r)

	srv := &Server{
		HTTPServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      r,
			ReadTimeout:  20 * time.Second,
			WriteTimeout: 20 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		DB:    dbPool,
		Redis: redisClient,
		Hub:   hub,
	}

	if redisClient != nil {
		if err := hub.StartRedisSubscriber(context.Background()); err != nil {
			commonlog.Warnf("start hub redis subscriber: %v", err)
		}
	}

	if cfg.AMQPURL != "" {
		if err := srv.startConsumer(cfg); err != nil {
			commonlog.Warnf("start event consumer: %v", err)
		}
	}
	return srv, nil
}

func (s *Server) startConsumer(cfg Config) error {
	conn, err := mq.NewConnection(cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	queue := cfg.EventQueue
	if queue == "" {
		queue = "notifier.events"
	}
	// Bind to everything on the exchange; the consumer filters by
	// routing key.
	ch, deliveries, err := mq.Consume(conn, queue, "#")
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("bind event queue: %w", err)
	}

	notificationSvc := service.NewNotificationService(repository.NewNotificationRepository(s.DB), s.Hub)
	consumer := service.NewEventConsumer(notificationSvc)

	consumerCtx, cancel := context.WithCancel(context.Background())
	s.AMQP = conn
	s.amqpChannel = ch
	s.consumerCancel = cancel
	go consumer.Run(consumerCtx, deliveries)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.consumerCancel != nil {
		s.consumerCancel()
	}
	if s.amqpChannel != nil {
		_ = s.amqpChannel.Close()
	}
	if s.AMQP != nil {
		_ = s.AMQP.Close()
	}
	s.Hub.StopRedisSubscriber()
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	return s.HTTPServer.Shutdown(ctx)
}
