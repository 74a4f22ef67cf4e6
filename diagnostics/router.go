// Package diagnostics exposes a supervisor.Manager over HTTP: listing
// units, reading their logs, starting and stopping them. Router
// construction and its middleware stack are adapted from the teacher's
// cmd/zmux-server/main.go (spec.md DOMAIN STACK expansion).
package diagnostics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	ginredis "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/procexec"
	"github.com/edirooss/procexec/diagnostics/middleware"
	"github.com/edirooss/procexec/history"
	"github.com/edirooss/procexec/internal/diag"
	"github.com/edirooss/procexec/supervisor"
)

// Config configures the diagnostics HTTP surface.
type Config struct {
	Dev               bool // relaxes CORS for local frontend development
	Credentials       middleware.Credentials
	SessionRedisAddr  string
	SessionSecret     []byte
	MaxConcurrentHTTP int

	// History is optional; when nil, /api/runs reports an empty history
	// rather than 500ing.
	History *history.RunRepository
}

// ZapLogger logs each request's method, route, status, and latency,
// verbatim in spirit from the teacher's own ZapLogger middleware.
func ZapLogger(log *zap.Logger, verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr), zap.String("error_chain", diag.ErrChain(joinedErr)))
			if verbose {
				fields = append(fields, zap.String("error_chain_debug", diag.ErrChainDebug(joinedErr)))
			}
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// NewRouter builds the gin.Engine exposing mgr's units over HTTP. It
// returns an error only if the session store's Redis connection fails
// during setup.
func NewRouter(log *zap.Logger, mgr *supervisor.Manager, cfg Config) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})

	r.Use(gin.Recovery())

	if cfg.Dev {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization", "X-CSRF-Token"},
			ExposeHeaders:    []string{"X-Total-Count"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(secure.New(secure.Config{
			SSLRedirect:           false,
			STSSeconds:            31536000,
			STSIncludeSubdomains:  true,
			FrameDeny:             true,
			ContentTypeNosniff:    true,
			BrowserXssFilter:      true,
			ContentSecurityPolicy: "default-src 'self'",
		}))
	}

	store, err := ginredis.NewStoreWithDB(10, "tcp", cfg.SessionRedisAddr, "", "", "0", cfg.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: new session store: %w", err)
	}
	store.Options(sessions.Options{
		Path:     "/api",
		MaxAge:   4 * 3600,
		Secure:   !cfg.Dev,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	r.Use(sessions.Sessions("procguardd_session", store))

	r.Use(middleware.RequestID())
	r.Use(ZapLogger(log, cfg.Dev))
	r.Use(middleware.CapConcurrentRequests(cfg.MaxConcurrentHTTP))

	api := r.Group("/api")
	api.Use(middleware.Authentication(cfg.Credentials))
	api.Use(middleware.ValidateSessionCSRF)

	api.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api.GET("/units", func(c *gin.Context) {
		ids := mgr.List()
		c.Header("X-Total-Count", strconv.Itoa(len(ids)))
		c.JSON(http.StatusOK, ids)
	})

	units := api.Group("/units/:id")
	units.Use(middleware.RequireValidUnitID())

	units.GET("", func(c *gin.Context) {
		id := unitIDParam(c)
		u := mgr.Unit(id)
		if u == nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "unit not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":        u.ID,
			"path":      u.Opts.Path,
			"argv":      u.Opts.Argv,
			"started_at": u.StartedAt,
			"exit_code": u.ExitCode(),
		})
	})

	units.GET("/logs", func(c *gin.Context) {
		id := unitIDParam(c)
		n, _ := strconv.Atoi(c.Query("n"))
		lines := mgr.Logs(id, n)
		c.JSON(http.StatusOK, lines)
	})

	units.DELETE("", func(c *gin.Context) {
		id := unitIDParam(c)
		if err := mgr.StopUnit(id); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	units.POST("/kill", func(c *gin.Context) {
		id := unitIDParam(c)
		if err := mgr.KillUnit(id); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	api.GET("/runs", func(c *gin.Context) {
		if cfg.History == nil {
			c.JSON(http.StatusOK, []history.Record{})
			return
		}
		n, _ := strconv.ParseInt(c.DefaultQuery("n", "100"), 10, 64)
		if n <= 0 {
			n = 100
		}
		recs, err := cfg.History.Recent(c.Request.Context(), n)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, recs)
	})

	api.GET("/runs/:run_id", func(c *gin.Context) {
		if cfg.History == nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "history not configured"})
			return
		}
		id, err := strconv.ParseInt(c.Param("run_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid run_id"})
			return
		}
		rec, err := cfg.History.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, history.ErrRunNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
				return
			}
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	api.POST("/units", func(c *gin.Context) {
		var req struct {
			Path    string            `json:"path" binding:"required"`
			Argv    []string          `json:"argv" binding:"required"`
			Env     map[string]string `json:"env"`
			Dir     string            `json:"dir"`
			Restart bool              `json:"restart"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		id, err := mgr.StartUnit(c.Request.Context(), procexec.StartOptions{
			Path: req.Path,
			Argv: req.Argv,
			Env:  req.Env,
			Dir:  req.Dir,
		}, supervisor.RestartPolicy{Enabled: req.Restart})
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})

	return r, nil
}

func unitIDParam(c *gin.Context) supervisor.UnitID {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	return supervisor.UnitID(id)
}
