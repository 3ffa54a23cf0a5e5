package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/LJTian/InsightHub/internal/export"
	"github.com/LJTian/InsightHub/internal/logger"
	"github.com/LJTian/InsightHub/internal/processor"
	"github.com/LJTian/InsightHub/internal/storage"
)

// Feed 提供当前（可能来自缓存的）排序结果
type Feed interface {
	Latest(ctx context.Context) ([]processor.Article, error)
}

// Syncer 对应看板上的 Sync Feeds，scheduler.Scheduler 实现
type Syncer interface {
	RunOnce(ctx context.Context) (int, error)
}

type Server struct {
	feed    Feed
	syncer  Syncer
	repo    storage.Repository
	metrics http.Handler
	loc     *time.Location
	now     func() time.Time
	log     *logrus.Entry

	validTopic func(processor.Topic) bool
}

type Option func(*Server)

func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRules 让收藏接口接受规则文件中自定义的主题
func WithRules(r processor.Rules) Option {
	return func(s *Server) { s.validTopic = r.HasTopic }
}

func NewServer(feed Feed, syncer Syncer, repo storage.Repository, opts ...Option) *Server {
	s := &Server{
		feed:   feed,
		syncer: syncer,
		repo:   repo,
		loc:    time.UTC,
		now:    time.Now,
		log:    logger.Component("api"),

		validTopic: processor.ValidTopic,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/articles", s.listArticles)
		v1.GET("/articles/filters", s.articleFilters)
		v1.GET("/articles/export", s.exportArticles)
		v1.POST("/sync", s.sync)

		v1.GET("/saved", s.listSaved)
		v1.POST("/saved", s.saveArticle)
		v1.DELETE("/saved", s.removeSaved)

		v1.GET("/sources", s.listSources)
		v1.POST("/sources", s.addSource)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type articleView struct {
	Firm     string `json:"firm"`
	Region   string `json:"region"`
	Topic    string `json:"topic"`
	Headline string `json:"headline"`
	Impact   int    `json:"impact"`
	Date     string `json:"date"`
	Link     string `json:"link"`
	Status   string `json:"status"`
	Saved    bool   `json:"saved"`
}

func (s *Server) listArticles(c *gin.Context) {
	articles, ok := s.latest(c)
	if !ok {
		return
	}
	articles = processor.Filter(articles, c.Query("region"), c.Query("topic"))

	saved, err := s.repo.SavedLinks(c.Request.Context())
	if err != nil {
		// 收藏状态只是附加信息，失败时照常返回列表
		s.log.WithError(err).Warn("load saved links failed")
		saved = map[string]bool{}
	}

	views := make([]articleView, 0, len(articles))
	for _, a := range articles {
		views = append(views, articleView{
			Firm:     a.Firm,
			Region:   a.Region,
			Topic:    string(a.Topic),
			Headline: a.Headline,
			Impact:   a.Impact,
			Date:     a.Date.Format(processor.DateLayout),
			Link:     a.Link,
			Status:   a.Status(),
			Saved:    saved[a.Link],
		})
	}
	ok200(c, views)
}

func (s *Server) articleFilters(c *gin.Context) {
	articles, ok := s.latest(c)
	if !ok {
		return
	}
	ok200(c, gin.H{
		"regions": processor.Regions(articles),
		"topics":  processor.Topics(articles),
	})
}

func (s *Server) exportArticles(c *gin.Context) {
	articles, ok := s.latest(c)
	if !ok {
		return
	}
	articles = processor.Filter(articles, c.Query("region"), c.Query("topic"))

	name := export.FileName(s.now().In(s.loc))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, articles); err != nil {
		s.log.WithError(err).Error("write csv export failed")
	}
}

func (s *Server) sync(c *gin.Context) {
	n, err := s.syncer.RunOnce(c.Request.Context())
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "sync_failed", "refresh did not complete")
		return
	}
	ok200(c, gin.H{"count": n})
}

type savedView struct {
	ID              uint   `json:"id"`
	Headline        string `json:"headline"`
	Link            string `json:"link"`
	Firm            string `json:"firm"`
	Region          string `json:"region"`
	Topic           string `json:"topic"`
	Impact          int    `json:"impact"`
	PublicationDate string `json:"publication_date"`
	SavedAt         string `json:"saved_at"`
}

func (s *Server) listSaved(c *gin.Context) {
	items, err := s.repo.ListSaved(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	views := make([]savedView, 0, len(items))
	for _, it := range items {
		views = append(views, savedView{
			ID:              it.ID,
			Headline:        it.Headline,
			Link:            it.Link,
			Firm:            it.Firm,
			Region:          it.Region,
			Topic:           it.Topic,
			Impact:          it.Impact,
			PublicationDate: time.Time(it.PublicationDate).Format(processor.DateLayout),
			SavedAt:         it.SavedAt.In(s.loc).Format(time.RFC3339),
		})
	}
	ok200(c, views)
}

func (s *Server) saveArticle(c *gin.Context) {
	var a processor.Article
	if err := c.ShouldBindJSON(&a); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "invalid article payload")
		return
	}
	a.Link = strings.TrimSpace(a.Link)
	a.Headline = strings.TrimSpace(a.Headline)
	if a.Link == "" || a.Headline == "" {
		fail(c, http.StatusBadRequest, "bad_request", "headline and link are required")
		return
	}
	if a.Impact < 0 || a.Impact > 100 {
		fail(c, http.StatusBadRequest, "bad_request", "impact must be between 0 and 100")
		return
	}
	if !s.validTopic(a.Topic) {
		fail(c, http.StatusBadRequest, "bad_request", "unknown topic")
		return
	}
	if a.Date.IsZero() {
		y, m, d := s.now().In(s.loc).Date()
		a.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	inserted, err := s.repo.SaveArticle(c.Request.Context(), a)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !inserted {
		fail(c, http.StatusConflict, "already_saved", "article already saved")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": "ok", "message": "saved", "data": gin.H{"link": a.Link}})
}

func (s *Server) removeSaved(c *gin.Context) {
	link := strings.TrimSpace(c.Query("link"))
	if link == "" {
		fail(c, http.StatusBadRequest, "bad_request", "link is required")
		return
	}
	if err := s.repo.RemoveSaved(c.Request.Context(), link); err != nil {
		s.internalError(c, err)
		return
	}
	ok200(c, gin.H{"link": link})
}

func (s *Server) listSources(c *gin.Context) {
	list, err := s.repo.ListSources(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	ok200(c, list)
}

type addSourceRequest struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Category string `json:"category"`
}

func (s *Server) addSource(c *gin.Context) {
	var req addSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "invalid source payload")
		return
	}
	inserted, err := s.repo.AddSource(c.Request.Context(), req.Name, req.Domain, req.Category)
	if errors.Is(err, storage.ErrInvalidSource) {
		fail(c, http.StatusBadRequest, "invalid_source", err.Error())
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !inserted {
		fail(c, http.StatusConflict, "domain_exists", "domain already registered")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": "ok", "message": "created", "data": gin.H{"domain": strings.ToLower(strings.TrimSpace(req.Domain))}})
}

func (s *Server) latest(c *gin.Context) ([]processor.Article, bool) {
	articles, err := s.feed.Latest(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("load articles failed")
		fail(c, http.StatusServiceUnavailable, "unavailable", "articles are not available")
		return nil, false
	}
	return articles, true
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func ok200(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
