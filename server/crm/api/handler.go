package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	commonauth "reno_server/server/common/auth"
	commonlog "reno_server/server/common/log"
	"reno_server/server/common/middleware"
	"reno_server/server/common/transport/httpresp"
	"reno_server/server/crm/domain"
	"reno_server/server/crm/service"
)

type Handler struct {
	crm  *service.CRMService
	auth *commonauth.Service
}

func NewHandler(crm *service.CRMService, auth *commonauth.Service) *Handler {
	return &Handler{crm: crm, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.POST("/leads", h.createLead)
		api.GET("/leads", h.listLeads)
		api.GET("/leads/:id", h.getLead)
		api.PUT("/leads/:id/status", h.transitionLead)
		api.GET("/leads/:id/activities", h.listActivities)
		api.GET("/leads/:id/documents", h.listLeadDocuments)

		api.POST("/activities", h.createActivity)
		api.POST("/activities/:id/done", h.completeActivity)

		api.POST("/documents", h.createDocument)
		api.GET("/documents", h.listDocuments)
		api.GET("/documents/:id", h.getDocument)

		api.GET("/brief", h.morningBrief)
	}
}

func (h *Handler) createLead(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Phone       string `json:"phone"`
		Email       string `json:"email"`
		Address     string `json:"address"`
		Description string `json:"description"`
		AssignedTo  string `json:"assignedTo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	assignee := req.AssignedTo
	if assignee == "" {
		assignee = c.GetString(middleware.ContextUserID)
	}

	id, err := h.crm.CreateLead(c.Request.Context(), domain.Lead{
		AssignedTo:  assignee,
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Address:     req.Address,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
			return
		}
		commonlog.Errorf("create lead: %v", err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, httpresp.NewIDResponse(id))
}

func (h *Handler) listLeads(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	leads, err := h.crm.ListLeads(c.Request.Context(), userID, domain.LeadStatus(c.Query("status")))
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
			return
		}
		commonlog.Errorf("list leads for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"leads": leads})
}

func (h *Handler) getLead(c *gin.Context) {
	lead, err := h.crm.GetLead(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
			return
		}
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, lead)
}

func (h *Handler) transitionLead(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	lead, err := h.crm.TransitionLead(c.Request.Context(), c.Param("id"), domain.LeadStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidTransition):
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		default:
			commonlog.Errorf("transition lead %s: %v", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, lead)
}

func (h *Handler) listActivities(c *gin.Context) {
	activities, err := h.crm.ListActivities(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

func (h *Handler) createActivity(c *gin.Context) {
	var req struct {
		LeadID     string    `json:"leadId" binding:"required"`
		AssignedTo string    `json:"assignedTo"`
		Kind       string    `json:"kind" binding:"required"`
		Note       string    `json:"note"`
		DueAt      time.Time `json:"dueAt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	assignee := req.AssignedTo
	if assignee == "" {
		assignee = c.GetString(middleware.ContextUserID)
	}

	id, err := h.crm.CreateActivity(c.Request.Context(), domain.Activity{
		LeadID:     req.LeadID,
		AssignedTo: assignee,
		Kind:       req.Kind,
		Note:       req.Note,
		DueAt:      req.DueAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		default:
			commonlog.Errorf("create activity on lead %s: %v", req.LeadID, err)
			c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		}
		return
	}
	c.JSON(http.StatusCreated, httpresp.NewIDResponse(id))
}

func (h *Handler) completeActivity(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	err := h.crm.CompleteActivity(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		default:
			commonlog.Errorf("complete activity %s: %v", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) createDocument(c *gin.Context) {
	var req struct {
		Title   string                 `json:"title" binding:"required"`
		LeadID  string                 `json:"leadId"`
		Content domain.DocumentContent `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	id, err := h.crm.CreateDocument(c.Request.Context(), domain.Document{
		OwnerID: c.GetString(middleware.ContextUserID),
		LeadID:  req.LeadID,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
			return
		}
		commonlog.Errorf("create document: %v", err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, httpresp.NewIDResponse(id))
}

func (h *Handler) listDocuments(c *gin.Context) {
	docs, err := h.crm.ListDocuments(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *Handler) getDocument(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	admin := c.GetString(middleware.ContextRole) == "admin"

	doc, err := h.crm.GetDocument(c.Request.Context(), userID, admin, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		default:
			c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) morningBrief(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	brief, err := h.crm.MorningBrief(c.Request.Context(), userID)
	if err != nil {
		commonlog.Errorf("morning brief for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, brief)
}
