package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/newsdigest/internal/auth"
	"horse.fit/newsdigest/internal/db"
	"horse.fit/newsdigest/internal/globaltime"
	"horse.fit/newsdigest/internal/pipeline"
	"horse.fit/newsdigest/internal/recommend"
)

const (
	apiKeyHeader = "X-API-Key"
	maxK         = 100
)

// Recommender is the slice of the pipeline service the API serves.
type Recommender interface {
	Recommend(ctx context.Context, articleID int64, k, window int) ([]pipeline.Recommendation, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// APIKeyHash, when set, guards the article routes with a bcrypt-checked
	// X-API-Key header.
	APIKeyHash      string
	RecommendWindow int
}

type Server struct {
	pool        *db.Pool
	recommender Recommender
	logger      zerolog.Logger
	opts        Options
}

func NewServer(pool *db.Pool, recommender Recommender, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	window := opts.RecommendWindow
	if window <= 0 {
		window = pipeline.DefaultRecommendWindow
	}

	return &Server{
		pool:        pool,
		recommender: recommender,
		logger:      logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			APIKeyHash:      strings.TrimSpace(opts.APIKeyHash),
			RecommendWindow: window,
		},
	}
}

// Handler builds the echo router without starting a listener.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			msg := "http request"
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
				msg = "http request failed"
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg(msg)
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)

	articles := api.Group("/articles")
	if s.opts.APIKeyHash != "" {
		articles.Use(s.requireAPIKey())
	}
	articles.GET("/:article_id/recommendations", s.handleRecommendations)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil || s.recommender == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Bool("api_key_required", s.opts.APIKeyHash != "").Msg("newsdigest api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("newsdigest api server stopped")
	return nil
}

func (s *Server) requireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !auth.VerifyAPIKey(c.Request().Header.Get(apiKeyHeader), s.opts.APIKeyHash) {
				return failUnauthorized(c)
			}
			return next(c)
		}
	}
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pool.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("database ping failed")
		return internalError(c, "Database unavailable")
	}
	return success(c, map[string]any{
		"service":  "newsdigest",
		"database": s.pool.Dialect(),
		"time":     globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.pool.CorpusStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleRecommendations(c echo.Context) error {
	fieldErrors := map[string]string{}

	articleID, err := strconv.ParseInt(strings.TrimSpace(c.Param("article_id")), 10, 64)
	if err != nil || articleID <= 0 {
		fieldErrors["article_id"] = "must be a positive integer"
	}

	k := recommend.DefaultK
	if raw := strings.TrimSpace(c.QueryParam("k")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxK {
			fieldErrors["k"] = fmt.Sprintf("must be an integer between 1 and %d", maxK)
		} else {
			k = parsed
		}
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	items, err := s.recommender.Recommend(c.Request().Context(), articleID, k, s.opts.RecommendWindow)
	switch {
	case errors.Is(err, pipeline.ErrArticleNotFound):
		return failNotFound(c, "Article not found")
	case errors.Is(err, pipeline.ErrFeaturesPending):
		return failNotFound(c, "Article has no features yet")
	case err != nil:
		s.logger.Error().Err(err).Int64("article_id", articleID).Msg("recommendations failed")
		return internalError(c, "Failed to load recommendations")
	}

	return success(c, map[string]any{
		"article_id": articleID,
		"k":          k,
		"items":      items,
	})
}
