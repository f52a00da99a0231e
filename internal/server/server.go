// Package server exposes ingestion and question answering over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
	"github.com/bananya-ml/arxiv-feed/internal/rag"
	"github.com/bananya-ml/arxiv-feed/internal/store"
)

type Ingester interface {
	Ingest(ctx context.Context, maxCount int, category string) ([]store.DocumentRecord, error)
}

type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (rag.Response, error)
}

type Catalog interface {
	ListDocuments(ctx context.Context) ([]store.DocumentRecord, error)
	GetSummary(ctx context.Context, link string) (store.SummaryRecord, bool, error)
}

type PendingCounter interface {
	Pending(ctx context.Context, key string) (int, error)
}

type HealthReporter interface {
	Healthy() bool
}

type IndexCounter interface {
	Count() int
}

type Options struct {
	Version         string
	DefaultCategory string
	DefaultMax      int
	CORS            CORSConfig

	Ingester Ingester
	Answerer Answerer
	Catalog  Catalog
	Pending  PendingCounter
	Parser   HealthReporter
	Index    IndexCounter
	Log      *logging.Logger
}

type handler struct {
	opts Options
	log  *logging.Logger
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.DefaultMax <= 0 {
		opts.DefaultMax = 10
	}
	h := &handler{opts: opts, log: opts.Log}

	r := gin.New()
	r.Use(recovery(h.log), processTime(h.log), corsMiddleware(opts.CORS))

	r.GET("/", h.root)
	r.GET("/health", h.health)
	r.POST("/process_papers/", h.processPapers)
	r.POST("/query", h.query)
	r.GET("/papers", h.papers)
	return r
}

func (h *handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": h.opts.Version})
}

func (h *handler) health(c *gin.Context) {
	body := gin.H{"healthy": true}
	if h.opts.Parser != nil {
		body["healthy"] = h.opts.Parser.Healthy()
	}
	if h.opts.Index != nil {
		body["index_entries"] = h.opts.Index.Count()
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) processPapers(c *gin.Context) {
	maxResults := h.opts.DefaultMax
	if raw := c.Query("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(c, apperr.BadRequest("max_results must be an integer"))
			return
		}
		maxResults = n
	}
	category := c.DefaultQuery("category", h.opts.DefaultCategory)

	h.log.Info("starting to process papers", "max_results", maxResults, "category", category)
	records, err := h.opts.Ingester.Ingest(c.Request.Context(), maxResults, category)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if records == nil {
		records = []store.DocumentRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *handler) query(c *gin.Context) {
	var req rag.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.BadRequest("invalid request body: %v", err))
		return
	}
	resp, err := h.opts.Answerer.Answer(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Paper is a stored document joined with its generated text.
type Paper struct {
	ID string `json:"id"`
	store.DocumentRecord
	Summary         string `json:"summary,omitempty"`
	Insights        string `json:"insights,omitempty"`
	IndexingPending bool   `json:"indexing_pending"`
}

func (h *handler) papers(c *gin.Context) {
	ctx := c.Request.Context()
	docs, err := h.opts.Catalog.ListDocuments(ctx)
	if err != nil {
		h.respondError(c, apperr.Internal(err, "Failed to list papers"))
		return
	}
	out := make([]Paper, 0, len(docs))
	for _, doc := range docs {
		p := Paper{ID: paperID(doc.Link), DocumentRecord: doc}
		sum, ok, err := h.opts.Catalog.GetSummary(ctx, doc.Link)
		if err != nil {
			h.respondError(c, apperr.Internal(err, "Failed to list papers"))
			return
		}
		if ok {
			p.Summary, p.Insights = sum.Summary, sum.Insights
		}
		if h.opts.Pending != nil {
			n, err := h.opts.Pending.Pending(ctx, doc.Link)
			if err != nil {
				h.log.Warn("error reading index tracker", "link", doc.Link, "error", err)
			}
			p.IndexingPending = n > 0
		}
		out = append(out, p)
	}
	c.JSON(http.StatusOK, out)
}

// paperID is the last path element of an arXiv abs link.
func paperID(link string) string {
	return path.Base(strings.TrimSuffix(link, "/"))
}

func (h *handler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	var ae *apperr.Error
	detail := err.Error()
	if !errors.As(err, &ae) {
		detail = "An unexpected error occurred: " + detail
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
