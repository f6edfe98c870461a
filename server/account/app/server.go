package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	accountapi "reno_server/server/account/api"
	"reno_server/server/account/repository"
	"reno_server/server/account/service"
	commonauth "reno_server/server/common/auth"
	"reno_server/server/common/infra/db"
)

type Config struct {
	Port          string
	JWTSecret     string
	JWTTTLMinutes int
	PostgresDSN   string
}

type Server struct {
	HTTPServer *http.Server
	DB         *pgxpool.Pool
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := db.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres: %w", err)
	}

	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)
	userSvc := service.NewUserService(repository.NewUserRepository(dbPool), authSvc)

	h := accountapi.NewHandler(userSvc, authSvc)
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{HTTPServer: httpServer, DB: dbPool}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.DB != nil {
		s.DB.Close()
	}
	return s.HTTPServer.Shutdown(ctx)
}
