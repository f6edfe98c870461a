package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reno_server/server/account/domain"
	"reno_server/server/account/service"
	commonauth "reno_server/server/common/auth"
	commonlog "reno_server/server/common/log"
	"reno_server/server/common/middleware"
	"reno_server/server/common/transport/httpresp"
)

type Handler struct {
	users *service.UserService
	auth  *commonauth.Service
}

func NewHandler(users *service.UserService, auth *commonauth.Service) *Handler {
	return &Handler{users: users, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/api/v1/auth/login", h.login)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.GET("/users/me", h.me)

		admin := api.Group("")
		admin.Use(middleware.RequireRoles(string(domain.RoleAdmin)))
		{
			admin.POST("/auth/register", h.register)
			admin.GET("/users", h.searchUsers)
		}
	}
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	token, user, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidCredentials))
			return
		}
		commonlog.Errorf("login %s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewTokenResponse(token, user.ID, string(user.Role)))
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Phone    string `json:"phone"`
		Role     string `json:"role"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	id, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     domain.Role(req.Role),
		Password: req.Password,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, httpresp.NewIDResponse(id))
}

func (h *Handler) me(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	user, err := h.users.Profile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
			return
		}
		commonlog.Errorf("load profile %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) searchUsers(c *gin.Context) {
	users, err := h.users.Search(c.Request.Context(), c.Query("q"), 20)
	if err != nil {
		commonlog.Errorf("search users: %v", err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
