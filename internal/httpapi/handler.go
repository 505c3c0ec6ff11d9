// Package httpapi exposes résumé intake and evaluation lookup over HTTP.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/audit"
	"github.com/spigell/cv-screener/internal/evaluation"
	"github.com/spigell/cv-screener/internal/extract"
	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/vacancy"
)

// DefaultMaxUploadBytes bounds uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

const formOverheadBytes int64 = 64 << 10

// Submitter is satisfied by *pipeline.Orchestrator.
type Submitter interface {
	Submit(ctx context.Context, sub pipeline.Submission) (*pipeline.Result, error)
}

// RecordReader is the read side of an audit sink.
type RecordReader interface {
	Get(ctx context.Context, ref audit.Ref) (evaluation.Record, error)
}

type Handler struct {
	pipeline       Submitter
	vacancies      vacancy.Store
	records        RecordReader
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewHandler(p Submitter, vacancies vacancy.Store, records RecordReader, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		pipeline:       p,
		vacancies:      vacancies,
		records:        records,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))
	h.Register(router)
	return router
}

func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/vacancies", h.ListVacancies)
	router.POST("/vacancies/:id/resumes", h.SubmitResume)
	router.GET("/evaluations/:id", h.GetEvaluation)
	router.GET("/evaluations/:id/tips", h.GetTips)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "formats": extract.Formats()})
}

func (h *Handler) ListVacancies(c *gin.Context) {
	list, err := h.vacancies.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("list vacancies", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list vacancies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vacancies": list})
}

// SubmitResume accepts a multipart upload with a "file" part and an
// optional "submitter_id" field.
func (h *Handler) SubmitResume(c *gin.Context) {
	v, err := h.vacancies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, vacancy.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vacancy not found"})
			return
		}
		h.logger.Error("get vacancy", zap.String("vacancy_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load vacancy"})
		return
	}

	// The body also carries multipart framing and form fields.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverheadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file is too large"})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}

	res, err := h.pipeline.Submit(c.Request.Context(), pipeline.Submission{
		Data:        data,
		Filename:    header.Filename,
		Vacancy:     v,
		SubmitterID: strings.TrimSpace(c.PostForm("submitter_id")),
	})
	if err != nil {
		fail := pipeline.AsFailure(err)
		c.JSON(statusFor(fail.Kind), gin.H{
			"error_kind": fail.Kind,
			"message":    fail.SafeMessage(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"evaluation_id": res.Ref,
		"accept":        res.Decision.Accept,
		"tag":           res.Decision.Tag,
		"rating":        res.Decision.Rating,
		"message":       res.Decision.Message,
		"offer_tips":    res.Decision.OfferTips,
	})
}

func (h *Handler) GetEvaluation(c *gin.Context) {
	record, ok := h.record(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetTips returns the preparation tips stored with an evaluation.
func (h *Handler) GetTips(c *gin.Context) {
	record, ok := h.record(c)
	if !ok {
		return
	}
	if !record.HasTips() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tips for this evaluation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"evaluation_id":  record.ID,
		"interview_tips": record.InterviewTips,
	})
}

func (h *Handler) record(c *gin.Context) (evaluation.Record, bool) {
	ref, err := audit.ParseRef(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid evaluation id"})
		return evaluation.Record{}, false
	}

	record, err := h.records.Get(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evaluation not found"})
			return evaluation.Record{}, false
		}
		h.logger.Error("get evaluation", zap.String("ref", ref.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load evaluation"})
		return evaluation.Record{}, false
	}
	return record, true
}

func statusFor(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case pipeline.KindInvalidResume, pipeline.KindExtraction:
		return http.StatusUnprocessableEntity
	case pipeline.KindScoringUnavailable:
		return http.StatusServiceUnavailable
	case pipeline.KindScoringParse, pipeline.KindScoringValidation:
		return http.StatusBadGateway
	case pipeline.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}
