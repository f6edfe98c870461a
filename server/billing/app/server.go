package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	billingapi "reno_server/server/billing/api"
	"reno_server/server/billing/repository"
	"reno_server/server/billing/service"
	commonauth "reno_server/server/common/auth"
	"reno_server/server/common/infra/db"
	"reno_server/server/common/infra/mq"
	commonlog "reno_server/server/common/log"
)

type Config struct {
	Port          string
	JWTSecret     string
	JWTTTLMinutes int
	PostgresDSN   string
	AMQPURL       string
}

type Server struct {
	HTTPServer *http.Server
	DB         *pgxpool.Pool
	AMQP       *amqp.Connection
	Publisher  *mq.Publisher
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}

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
	billingSvc := service.NewBillingService(
		repository.NewQuoteRepository(dbPool),
		repository.NewInvoiceRepository(dbPool),
		events,
	)
	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)

	h := billingapi.NewHandler(billingSvc, authSvc)
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{HTTPServer: httpServer, DB: dbPool, AMQP: amqpConn, Publisher: publisher}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.AMQP != nil {
		_ = s.AMQP.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	return s.HTTPServer.Shutdown(ctx)
}
