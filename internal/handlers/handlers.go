package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/example/fitmirror/internal/auth"
	"github.com/example/fitmirror/internal/codec"
	"github.com/example/fitmirror/internal/repository"
	"github.com/example/fitmirror/internal/sizing"
	"github.com/example/fitmirror/internal/usecase"
)

// MaxUploadSize is the default upload limit for a single frame.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and the other form fields.
const multipartOverhead = 1 << 20

// FittingService is the use-case surface the HTTP layer depends on.
type FittingService interface {
	ProcessMirror(ctx context.Context, req usecase.MirrorRequest) (*usecase.MirrorResult, error)
	CompareSizes(ctx context.Context, req usecase.CompareRequest) (*usecase.CompareResult, error)
	DetectSize(ctx context.Context, image []byte) (*usecase.SizeEstimate, error)
	GetResult(ctx context.Context, shopperID, requestID string) (*repository.FittingSession, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// Middleware groups the authentication handlers applied to the routes.
type Middleware struct {
	// Identity resolves an optional shopper identity.
	Identity gin.HandlerFunc
	// Operator guards aggregate endpoints.
	Operator gin.HandlerFunc
}

type handler struct {
	svc       FittingService
	maxUpload int64
}

// RegisterRoutes wires the HTTP handlers to the Gin router. A non-positive
// maxUpload falls back to MaxUploadSize.
func RegisterRoutes(router *gin.Engine, svc FittingService, mw Middleware, maxUpload int64) {
	if maxUpload <= 0 {
		maxUpload = MaxUploadSize
	}
	if mw.Identity == nil {
		mw.Identity = func(c *gin.Context) { c.Next() }
	}
	if mw.Operator == nil {
		mw.Operator = mw.Identity
	}
	h := &handler{svc: svc, maxUpload: maxUpload}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1/ar")
	api.POST("/mirror/process", mw.Identity, h.processMirror)
	api.POST("/mirror/size-comparison", mw.Identity, h.compareSizes)
	api.POST("/detect-size", mw.Identity, h.detectSize)
	api.GET("/result/:id", mw.Identity, h.getResult)
	api.GET("/metrics/summary", mw.Operator, h.metricsSummary)
}

func (h *handler) processMirror(c *gin.Context) {
	data, ok := h.readImage(c)
	if !ok {
		return
	}

	shopperID, _ := auth.GetShopperID(c.Request.Context())
	res, err := h.svc.ProcessMirror(c.Request.Context(), usecase.MirrorRequest{
		ShopperID:   shopperID,
		ProductID:   formValue(c, "product_id"),
		GarmentType: formValue(c, "garment_type"),
		Image:       data,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{
		"request_id":          res.RequestID,
		"garment_type":        res.Garment.String(),
		"content_type":        res.ContentType,
		"image":               base64.StdEncoding.EncodeToString(res.Image),
		"size_recommendation": res.Recommendation,
		"measurements":        res.Measurements,
		"landmarks_count":     res.LandmarksCount,
		"created_at":          res.CreatedAt,
	}
	if res.Product != nil {
		body["product"] = productJSON(res.Product)
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) compareSizes(c *gin.Context) {
	data, ok := h.readImage(c)
	if !ok {
		return
	}

	res, err := h.svc.CompareSizes(c.Request.Context(), usecase.CompareRequest{
		ProductID: formValue(c, "product_id"),
		Sizes:     sizing.ParseLabels(formValue(c, "sizes")),
		Image:     data,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	comparisons := make([]gin.H, 0, len(res.Comparisons))
	for _, r := range res.Comparisons {
		comparisons = append(comparisons, gin.H{
			"size":  r.Size,
			"scale": r.Scale,
			"image": base64.StdEncoding.EncodeToString(r.Image),
		})
	}
	body := gin.H{
		"request_id":   res.RequestID,
		"content_type": res.ContentType,
		"comparisons":  comparisons,
		"measurements": res.Measurements,
		"created_at":   res.CreatedAt,
	}
	if res.Product != nil {
		body["product"] = productJSON(res.Product)
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) detectSize(c *gin.Context) {
	data, ok := h.readImage(c)
	if !ok {
		return
	}

	res, err := h.svc.DetectSize(c.Request.Context(), data)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":     res.RequestID,
		"size_label":     res.Recommendation.Size,
		"confidence":     res.Recommendation.Confidence,
		"strategy":       res.Recommendation.Strategy,
		"shoulder_width": res.ShoulderWidth,
		"hip_width":      res.HipWidth,
		"measurements":   res.Measurements,
	})
}

func (h *handler) getResult(c *gin.Context) {
	requestID := c.Param("id")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required", "error_kind": usecase.KindInvalidRequest})
		return
	}

	shopperID, _ := auth.GetShopperID(c.Request.Context())
	session, err := h.svc.GetResult(c.Request.Context(), shopperID, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found", "error_kind": "not_found"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":   session.RequestID,
		"product_id":   session.ProductID,
		"garment_type": session.GarmentType,
		"size_label":   session.SizeLabel,
		"confidence":   session.Confidence,
		"strategy":     session.Strategy,
		"measurements": gin.H{
			"shoulder_width": session.ShoulderWidthPx,
			"hip_width":      session.HipWidthPx,
			"height":         session.HeightPx,
		},
		"created_at": session.CreatedAt,
	})
}

func (h *handler) metricsSummary(c *gin.Context) {
	summary, err := h.svc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// readImage reads and validates the "image" form file. It writes the error
// response itself and reports false when the request must stop.
func (h *handler) readImage(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		if isTooLarge(err) {
			h.tooLarge(c)
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required", "error_kind": usecase.KindInvalidRequest})
		return nil, false
	}
	if file.Size > h.maxUpload {
		h.tooLarge(c)
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image", "error_kind": usecase.KindInvalidRequest})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxUpload+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image", "error_kind": usecase.KindInternal})
		return nil, false
	}
	if int64(len(data)) > h.maxUpload {
		h.tooLarge(c)
		return nil, false
	}
	if !codec.IsImage(data) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image content", "error_kind": usecase.KindDecodeFailure})
		return nil, false
	}
	return data, true
}

// formValue reads a multipart field, falling back to the query string.
func formValue(c *gin.Context, key string) string {
	return strings.TrimSpace(c.DefaultPostForm(key, c.Query(key)))
}

func (h *handler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":      fmt.Sprintf("image exceeds %s limit", humanize.IBytes(uint64(h.maxUpload))),
		"error_kind": usecase.KindInvalidRequest,
	})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func writeError(c *gin.Context, err error) {
	kind := usecase.ErrorKind(err)
	c.JSON(statusFor(kind), gin.H{"error": err.Error(), "error_kind": kind})
}

func statusFor(kind string) int {
	switch kind {
	case usecase.KindUnsupportedGarment, usecase.KindInvalidRequest:
		return http.StatusBadRequest
	case usecase.KindDecodeFailure, usecase.KindPoseNotDetected, usecase.KindMissingLandmarks:
		return http.StatusUnprocessableEntity
	case usecase.KindProductLookup:
		return http.StatusNotFound
	case usecase.KindPending:
		return http.StatusAccepted
	case usecase.KindDeadline:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func productJSON(p *repository.Product) gin.H {
	return gin.H{
		"id":            p.ID,
		"name":          p.Name,
		"garment_type":  p.GarmentType,
		"display_color": p.DisplayColor,
	}
}
