package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"imagevault/internal/config"
	domain "imagevault/internal/domain/image"
	"imagevault/internal/infrastructure/auth"
	"imagevault/internal/interfaces/httpserver/responses"
	"imagevault/internal/utils/platformerrors"
)

// ImageHandler exposes the image CRUD and screening endpoints.
type ImageHandler struct {
	cfg     *config.Config
	service *domain.Service
	log     zerolog.Logger
}

func NewImageHandler(cfg *config.Config, service *domain.Service, log zerolog.Logger) *ImageHandler {
	return &ImageHandler{
		cfg:     cfg,
		service: service,
		log:     log.With().Str("component", "image-handler").Logger(),
	}
}

// readUpload pulls the multipart file out of the request. The declared part
// size is checked before reading so an oversized body is rejected without
// buffering it.
func (h *ImageHandler) readUpload(c *gin.Context) ([]byte, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"multipart field 'file' is required", "3a7c9d15-8e42-4b60-a97f-d26c1e58b304")
		return nil, false
	}
	defer file.Close()

	if header.Size > h.cfg.MaxImageBytes {
		responses.HandleNewError(c, platformerrors.ErrorTypePayloadTooBig,
			"file exceeds maximum size", "6b2e8f40-1d73-4c59-b8a6-05f3c7d92e41")
		return nil, false
	}

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxImageBytes+1))
	if err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation,
			"failed to read file", "9c5d0a83-7f16-4e24-b3d9-28a6e1f5c470")
		return nil, false
	}
	if int64(len(data)) > h.cfg.MaxImageBytes {
		responses.HandleNewError(c, platformerrors.ErrorTypePayloadTooBig,
			"file exceeds maximum size", "e18f4c62-3b05-4a97-8d2e-c74a90b5f613")
		return nil, false
	}
	return data, true
}

// Create godoc
// @Summary      Upload an image
// @Description  Screens, normalizes and stores an image, then records its metadata.
// @Tags         images
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Image file"
// @Success      201   {object}  responses.ImageResponse
// @Failure      400   {object}  responses.ErrorResponse
// @Failure      413   {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/images [post]
func (h *ImageHandler) Create(c *gin.Context) {
	data, ok := h.readUpload(c)
	if !ok {
		return
	}

	rec, err := h.service.Create(c.Request.Context(), auth.OwnerID(c), data)
	if err != nil {
		responses.HandleError(c, err, "upload failed")
		return
	}

	c.JSON(http.StatusCreated, responses.BuildImageResponse(rec))
}

// List godoc
// @Summary      List own images
// @Tags         images
// @Produce      json
// @Success      200  {object}  responses.ImageListResponse
// @Security     BearerAuth
// @Router       /v1/images [get]
func (h *ImageHandler) List(c *gin.Context) {
	recs, err := h.service.List(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		responses.HandleError(c, err, "list failed")
		return
	}

	c.JSON(http.StatusOK, responses.BuildImageListResponse(recs))
}

// Get godoc
// @Summary      Get one image record
// @Tags         images
// @Produce      json
// @Param        id   path      string  true  "Image ID"
// @Success      200  {object}  responses.ImageResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/images/{id} [get]
func (h *ImageHandler) Get(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		responses.HandleError(c, err, "fetch failed")
		return
	}

	c.JSON(http.StatusOK, responses.BuildImageResponse(rec))
}

// Replace godoc
// @Summary      Replace an image
// @Description  Stores the new content under a fresh key, then repoints the record.
// @Tags         images
// @Accept       multipart/form-data
// @Produce      json
// @Param        id    path      string  true  "Image ID"
// @Param        file  formData  file    true  "Image file"
// @Success      200   {object}  responses.ImageResponse
// @Failure      400   {object}  responses.ErrorResponse
// @Failure      404   {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/images/{id} [put]
func (h *ImageHandler) Replace(c *gin.Context) {
	data, ok := h.readUpload(c)
	if !ok {
		return
	}

	rec, err := h.service.Replace(c.Request.Context(), auth.OwnerID(c), c.Param("id"), data)
	if err != nil {
		responses.HandleError(c, err, "replace failed")
		return
	}

	c.JSON(http.StatusOK, responses.BuildImageResponse(rec))
}

// Destroy godoc
// @Summary      Delete an image
// @Description  Removes the blob first, then the metadata record.
// @Tags         images
// @Produce      json
// @Param        id   path  string  true  "Image ID"
// @Success      204  "no content"
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/images/{id} [delete]
func (h *ImageHandler) Destroy(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), auth.OwnerID(c), c.Param("id")); err != nil {
		responses.HandleError(c, err, "delete failed")
		return
	}

	c.Status(http.StatusNoContent)
}

// Screen godoc
// @Summary      Screen an image without storing it
// @Description  Runs content classification and reports detections. Nothing is persisted.
// @Tags         screening
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Image file"
// @Success      200   {object}  responses.ScreenResponse
// @Failure      400   {object}  responses.ErrorResponse
// @Failure      502   {object}  responses.ErrorResponse
// @Router       /v1/screen [post]
func (h *ImageHandler) Screen(c *gin.Context) {
	data, ok := h.readUpload(c)
	if !ok {
		return
	}

	flagged, detections, err := h.service.Screen(c.Request.Context(), data)
	if err != nil {
		responses.HandleError(c, err, "screening failed")
		return
	}

	c.JSON(http.StatusOK, responses.BuildScreenResponse(flagged, detections))
}
