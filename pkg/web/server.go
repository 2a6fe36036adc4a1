// Package web serves the read-only dashboard: catalog listing, tag
// autocomplete, and the mirrored media files themselves.
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pixmirror/pkg/logger"
	"pixmirror/pkg/store"
)

// Server is the dashboard HTTP server. All database access goes through
// read-only sessions; nothing here can mutate the mirror.
type Server struct {
	store    *store.Store
	worksDir string
	language string
	log      logger.Logger
	engine   *gin.Engine
}

// New builds the server and registers its routes. worksDir is exposed under
// /files so mirrored media is browsable directly.
func New(st *store.Store, worksDir, language string, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	_ = engine.SetTrustedProxies([]string{"127.0.0.1"})

	s := &Server{
		store:    st,
		worksDir: worksDir,
		language: language,
		log:      log,
		engine:   engine,
	}

	engine.GET("/health", s.health)

	api := engine.Group("/api")
	api.GET("/works", s.listWorks)
	api.GET("/works/:id", s.getWork)
	api.GET("/tags", s.suggestTags)

	engine.Static("/files", worksDir)

	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("dashboard listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listWorks(c *gin.Context) {
	limit := parseInt(c.Query("limit"), 50)
	offset := parseInt(c.Query("offset"), 0)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	sess, err := s.store.Begin(c.Request.Context(), store.ReadOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database unavailable"})
		return
	}
	defer sess.Close()

	total, err := sess.CountWorks()
	if err != nil {
		s.log.WithError(err).Error("count works failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
		return
	}
	items, err := sess.ListWorks(limit, offset)
	if err != nil {
		s.log.WithError(err).Error("list works failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (s *Server) getWork(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad work id"})
		return
	}

	sess, err := s.store.Begin(c.Request.Context(), store.ReadOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database unavailable"})
		return
	}
	defer sess.Close()

	w, err := sess.GetWork(id)
	if err != nil {
		s.log.WithError(err).Error("get work failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if w == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	caption, _, err := sess.GetCaption(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	tags, err := sess.WorkTagTexts(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	urls, err := sess.ImageURLs(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}

	pages := make([]gin.H, 0, len(urls))
	for _, u := range urls {
		pages = append(pages, gin.H{
			"page":     u.Page,
			"original": u.Original,
			"large":    u.Large,
			"medium":   u.Medium,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"work_id":         w.ID,
		"creator_id":      w.CreatorID,
		"type":            w.Type,
		"title":           w.Title,
		"caption":         caption,
		"page_count":      w.PageCount,
		"total_views":     w.TotalViews,
		"total_bookmarks": w.TotalBookmarks,
		"bookmark_rate":   w.BookmarkRate.Float64,
		"is_downloaded":   w.IsDownloaded,
		"tags":            tags,
		"pages":           pages,
	})
}

// suggestTags backs the dashboard's tag autocomplete box.
func (s *Server) suggestTags(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, gin.H{"items": []store.TagSuggestion{}})
		return
	}
	lang := c.Query("lang")
	if lang == "" {
		lang = s.language
	}

	items, err := s.store.TagsLike(c.Request.Context(), q, lang)
	if err != nil {
		s.log.WithError(err).Error("tag suggest failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "suggest failed"})
		return
	}
	if items == nil {
		items = []store.TagSuggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
