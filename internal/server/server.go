package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TobiSchelling/chatlens/internal/classify"
	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/engine"
	"github.com/TobiSchelling/chatlens/internal/pipeline"
	"github.com/TobiSchelling/chatlens/internal/report"
	"github.com/TobiSchelling/chatlens/internal/taxonomy"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>chatlens report</title>
</head>
<body>
%s
</body>
</html>
`

// Store is the persistence the HTTP surface reads from and writes
// corrections to.
type Store interface {
	GetLastIngestRun(ctx context.Context) (*database.IngestRun, error)
	GetStats(ctx context.Context) (*database.Stats, error)
	GetReviewQueue(ctx context.Context, page, limit int) ([]database.Message, int, error)
	SaveCorrection(ctx context.Context, c database.Correction) (bool, error)
}

// Taxonomy locates the category and product documents. Both are re-read on
// each correction so a keyword learned by one request serves the next.
type Taxonomy struct {
	CategoriesPath string
	ProductsPath   string
}

// Server is the HTTP surface over the engine.
type Server struct {
	eng    *engine.Engine
	runner *pipeline.Runner
	store  Store
	tax    Taxonomy
	logger *zap.Logger
	router *gin.Engine
}

// New creates a new Server. The engine must already be initialized.
func New(eng *engine.Engine, runner *pipeline.Runner, store Store, tax Taxonomy, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{eng: eng, runner: runner, store: store, tax: tax, logger: logger, router: router}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/threads/:id", s.handleThread)
	api.GET("/referrals", s.handleReferrals)
	api.GET("/failures", s.handleFailures)
	api.GET("/review", s.handleReviewQueue)
	api.POST("/messages/:id/correction", s.handleCorrection)
	api.POST("/reingest", s.handleReingest)

	s.router.GET("/report", s.handleReport)
}

func (s *Server) handleHealth(c *gin.Context) {
	state := s.eng.State()
	status := http.StatusOK
	if state != engine.StateReady && state != engine.StateReloading {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"state":     state.String(),
		"ingesting": s.runner.Running(),
	})
}

func (s *Server) handleThread(c *gin.Context) {
	id := c.Param("id")
	msgs := s.eng.ThreadMessages(id)
	if len(msgs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"thread_id":          id,
		"length":             s.eng.ThreadLength(id),
		"servilinea":         s.eng.IsServilinea(id),
		"has_empty_messages": s.eng.HasEmptyMessages(id),
		"messages":           msgs,
	})
}

func (s *Server) handleReferrals(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Referrals())
}

func (s *Server) handleFailures(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Failures())
}

func (s *Server) handleReviewQueue(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	msgs, total, err := s.store.GetReviewQueue(c.Request.Context(), page, limit)
	if err != nil {
		s.logger.Error("loading review queue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "messages": msgs})
}

type correctionRequest struct {
	Category      string `json:"category" binding:"required"`
	CategoryMacro string `json:"category_macro"`
	Sentiment     string `json:"sentiment"`
	Product       string `json:"product"`
	ProductMacro  string `json:"product_macro"`
	Keyword       string `json:"keyword"`
}

func (s *Server) handleCorrection(c *gin.Context) {
	id := c.Param("id")
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tax, err := taxonomy.Load(s.tax.CategoriesPath, s.tax.ProductsPath, s.logger)
	if err != nil {
		s.logger.Error("loading taxonomy", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	corr, err := classify.BuildCorrection(tax, classify.CorrectionInput{
		MessageID:     id,
		Category:      req.Category,
		CategoryMacro: req.CategoryMacro,
		Sentiment:     req.Sentiment,
		Product:       req.Product,
		ProductMacro:  req.ProductMacro,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	found, err := s.store.SaveCorrection(c.Request.Context(), corr)
	if err != nil {
		s.logger.Error("saving correction", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	updates := map[string]any{
		engine.FieldCategory:       corr.Category,
		engine.FieldCategoryMacro:  corr.CategoryMacro,
		engine.FieldRequiresReview: false,
	}
	if corr.Sentiment != nil {
		updates[engine.FieldSentiment] = *corr.Sentiment
	}
	if corr.Product != nil {
		updates[engine.FieldProduct] = corr.Product
		updates[engine.FieldProductMacro] = corr.ProductMacro
	}
	s.eng.UpdateMessage(id, updates)

	learned := false
	if req.Keyword != "" {
		learned, err = taxonomy.AppendKeyword(s.tax.CategoriesPath, corr.Category, req.Keyword)
		if err != nil {
			s.logger.Error("learning keyword", zap.String("category", corr.Category), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message_id":     id,
		"applied":        found,
		"category_macro": corr.CategoryMacro,
		"learned":        learned,
	})
}

func (s *Server) handleReingest(c *gin.Context) {
	err := s.runner.TryStart(c.Request.Context())
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) handleReport(c *gin.Context) {
	ctx := c.Request.Context()
	in := report.Input{
		Messages:  s.eng.Messages(nil, nil),
		Referrals: s.eng.Referrals(),
		Failures:  s.eng.Failures(),
	}
	var err error
	if in.Run, err = s.store.GetLastIngestRun(ctx); err == nil {
		in.Stats, err = s.store.GetStats(ctx)
	}
	if err != nil {
		s.logger.Error("loading report data", zap.Error(err))
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	body, err := report.RenderHTML(report.Compose(in))
	if err != nil {
		s.logger.Error("rendering report", zap.Error(err))
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(pageTemplate, body)))
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Serve starts the HTTP server on the given port and shuts it down when
// ctx is canceled.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	errc := make(chan error, 1)
	go func() {
		srv.logger.Info("server listening", zap.String("addr", "http://"+addr))
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.logger.Info("shutting down server")
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		srv.runner.Wait()
		return nil
	}
}
