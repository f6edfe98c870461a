package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	commonauth "reno_server/server/common/auth"
	commonlog "reno_server/server/common/log"
	"reno_server/server/common/middleware"
	"reno_server/server/common/transport/httpresp"
	"reno_server/server/fileman/domain"
	"reno_server/server/fileman/service"
)

type Handler struct {
	files *service.FileService
	auth  *commonauth.Service
}

func NewHandler(files *service.FileService, auth *commonauth.Service) *Handler {
	return &Handler{files: files, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.GET("/files", h.listFiles)
		api.PUT("/files", h.updateFileMetadata)
		api.DELETE("/files", h.bulkDeleteFiles)
		api.POST("/files/presign-upload", h.presignUpload)
		api.POST("/files/presign-download", h.presignDownload)
		api.POST("/files/register", h.registerFile)
	}
}

func (h *Handler) listFiles(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}

	opts := domain.ListOptions{
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		FileType:   c.Query("fileType"),
		Tags:       domain.ParseTags(c.Query("tags")),
		Page:       domain.ParsePage(c.Query("page"), domain.DefaultPage),
		Limit:      domain.ParsePage(c.Query("limit"), domain.DefaultLimit),
		SortBy:     c.Query("sortBy"),
		SortOrder:  c.Query("sortOrder"),
	}

	result, err := h.files.List(c.Request.Context(), caller, opts)
	if err != nil {
		commonlog.Errorf("list files for %s: %v", caller.ID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) updateFileMetadata(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var req struct {
		FileID      string          `json:"fileId"`
		Tags        json.RawMessage `json:"tags"`
		Description *string         `json:"description"`
		IsPublic    *bool           `json:"isPublic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	if req.FileID == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("fileId is required"))
		return
	}

	update := domain.MetadataUpdate{
		FileID:      req.FileID,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	}
	if len(req.Tags) > 0 && string(req.Tags) != "null" {
		// A tags value of the wrong shape coerces to an empty list
		// rather than failing the whole update.
		var tags []string
		if err := json.Unmarshal(req.Tags, &tags); err != nil {
			tags = []string{}
		}
		update.Tags = &tags
	}

	updated, err := h.files.UpdateMetadata(c.Request.Context(), caller, update)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, httpresp.NewErrorResponse(httpresp.ErrNotFound))
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
		default:
			commonlog.Errorf("update file %s metadata: %v", req.FileID, err)
			c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": updated})
}

func (h *Handler) bulkDeleteFiles(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var req struct {
		FileIDs []string `json:"fileIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	if len(req.FileIDs) == 0 {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("fileIds is required"))
		return
	}

	result, err := h.files.BulkDelete(c.Request.Context(), caller, req.FileIDs)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			c.JSON(http.StatusForbidden, httpresp.NewErrorResponse(httpresp.ErrForbidden))
			return
		}
		commonlog.Errorf("bulk delete files for %s: %v", caller.ID, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) presignUpload(c *gin.Context) {
	if _, err := callerFromContext(c); err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var req struct {
		OriginalName string `json:"originalName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	url, objectKey, err := h.files.PresignUpload(c.Request.Context(), req.OriginalName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "objectKey": objectKey})
}

func (h *Handler) presignDownload(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var req struct {
		FileID string `json:"fileId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	url, err := h.files.PresignDownload(c.Request.Context(), caller, req.FileID)
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
	c.JSON(http.StatusOK, httpresp.NewURLResponse(url))
}

func (h *Handler) registerFile(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var req struct {
		ObjectKey    string   `json:"objectKey" binding:"required"`
		ContentType  string   `json:"contentType" binding:"required"`
		SizeBytes    int64    `json:"sizeBytes" binding:"required"`
		OriginalName string   `json:"originalName" binding:"required"`
		EntityType   string   `json:"entityType"`
		EntityID     string   `json:"entityId"`
		Tags         []string `json:"tags"`
		Description  string   `json:"description"`
		IsPublic     bool     `json:"isPublic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}

	item, err := h.files.Register(c.Request.Context(), domain.FileRecord{
		UploadedBy:   caller.ID,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		OriginalName: req.OriginalName,
		ContentType:  req.ContentType,
		SizeBytes:    req.SizeBytes,
		FilePath:     req.ObjectKey,
		Tags:         req.Tags,
		Description:  req.Description,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
			return
		}
		commonlog.Errorf("register file %s: %v", req.ObjectKey, err)
		c.JSON(http.StatusInternalServerError, httpresp.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, item)
}

func callerFromContext(c *gin.Context) (domain.Caller, error) {
	rawUserID, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return domain.Caller{}, http.ErrNoCookie
	}
	userID, ok := rawUserID.(string)
	if !ok || userID == "" {
		return domain.Caller{}, http.ErrNoCookie
	}
	role, _ := c.Get(middleware.ContextRole)
	roleStr, _ := role.(string)
	return domain.Caller{ID: userID, Role: roleStr}, nil
}
