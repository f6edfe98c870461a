package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reno_server/server/billing/domain"
	"reno_server/server/billing/service"
	commonauth "reno_server/server/common/auth"
	commonlog "reno_server/server/common/log"
	"reno_server/server/common/middleware"
	"reno_server/server/common/transport/httpresp"
)

type Handler struct {
	billing *service.BillingService
	auth    *commonauth.Service
}

func NewHandler(billing *service.BillingService, auth *commonauth.Service) *Handler {
	return &Handler{billing: billing, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.POST("/quotes", h.createQuote)
		api.GET("/quotes", h.listQuotes)
		api.GET("/quotes/:id", h.getQuote)
		api.PUT("/quotes/:id", h.updateQuote)
		api.PUT("/quotes/:id/status", h.transitionQuote)
		api.POST("/quotes/:id/invoice", h.issueInvoice)

		api.GET("/invoices", h.listInvoices)
		api.GET("/invoices/:id", h.getInvoice)
		api.POST("/invoices/:id/paid", h.markInvoicePaid)

		admin := api.Group("")
		admin.Use(middleware.RequireRoles("admin"))
		{
			admin.GET("/invoices/overdue", h.listOverdueInvoices)
		}
	}
}

type quoteRequest struct {
	LeadID       string `json:"leadId"`
	CustomerName string `json:"customerName" binding:"required"`
	Items        []struct {
		Description    string `json:"description"`
		Quantity       int64  `json:"quantity"`
		UnitPriceCents int64  `json:"unitPriceCents"`
	} `json:"items" binding:"required"`
	TaxRateBasisPoints int64 `json:"taxRateBasisPoints"`
}

func (req quoteRequest) toInput() service.QuoteInput {
	items := make([]domain.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.LineItem{
			Description:    item.Description,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return service.QuoteInput{
		LeadID:       req.LeadID,
		CustomerName: req.CustomerName,
		Items:        items,
		TaxRateBasis: req.TaxRateBasisPoints,
	}
}

func (h *Handler) createQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	quote, err := h.billing.CreateQuote(c.Request.Context(), c.GetString(middleware.ContextUserID), req.toInput())
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
			return
		}
		commonlog.Errorf("create quote: %v", err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, quote)
}

func (h *Handler) listQuotes(c *gin.Context) {
	quotes, err := h.billing.ListQuotes(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

func (h *Handler) getQuote(c *gin.Context) {
	quote, err := h.billing.GetQuote(c.Request.Context(), caller(c), isAdmin(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "get quote")
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) updateQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	quote, err := h.billing.UpdateQuote(c.Request.Context(), caller(c), isAdmin(c), c.Param("id"), req.toInput())
	if err != nil {
		h.writeError(c, err, "update quote")
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) transitionQuote(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	quote, err := h.billing.TransitionQuote(c.Request.Context(), caller(c), isAdmin(c), c.Param("id"), domain.QuoteStatus(req.Status))
	if err != nil {
		h.writeError(c, err, "transition quote")
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) issueInvoice(c *gin.Context) {
	invoice, err := h.billing.IssueInvoice(c.Request.Context(), caller(c), isAdmin(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "issue invoice")
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (h *Handler) listInvoices(c *gin.Context) {
	invoices, err := h.billing.ListInvoices(c.Request.Context(), caller(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (h *Handler) getInvoice(c *gin.Context) {
	invoice, err := h.billing.GetInvoice(c.Request.Context(), caller(c), isAdmin(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "get invoice")
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (h *Handler) markInvoicePaid(c *gin.Context) {
	if err := h.billing.MarkInvoicePaid(c.Request.Context(), caller(c), isAdmin(c), c.Param("id")); err != nil {
		h.writeError(c, err, "mark invoice paid")
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) listOverdueInvoices(c *gin.Context) {
	invoices, err := h.billing.ListOverdueInvoices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (h *Handler) writeError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrNotEditable),
		errors.Is(err, service.ErrNotAccepted):
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
	case errors.Is(err, service.ErrAlreadyInvoiced):
		c.JSON(http.StatusConflict, httpresp.NewErrorResponse(err.Error()))
	default:
		commonlog.Errorf("%s: %v", op, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
	}
}

func caller(c *gin.Context) string {
	return c.GetString(middleware.ContextUserID)
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(middleware.ContextRole) == "admin"
}
