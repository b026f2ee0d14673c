// Package httpapi exposes the device ingestion endpoint and the dashboard API over gin.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rfidattendance/internal/attendance"
	"rfidattendance/internal/auth"
	"rfidattendance/internal/directory"
	"rfidattendance/internal/httpmiddleware"
	"rfidattendance/internal/live"
	"rfidattendance/internal/logging"
	"rfidattendance/internal/metrics"
	"rfidattendance/internal/scanlog"
	"rfidattendance/internal/session"
	"rfidattendance/internal/timetable"
	"rfidattendance/internal/users"
	"rfidattendance/internal/validate"
)

// Checker is a dependency reported by /healthz.
type Checker interface {
	Healthy(ctx context.Context) bool
}

// Handler holds the services behind the routes.
type Handler struct {
	Users      *users.Service
	Issuer     *auth.Issuer
	Sessions   *session.Controller
	Attendance *attendance.Service
	Timetable  *timetable.Service
	Directory  *directory.Directory
	Scans      scanlog.Store
	Hub        *live.Hub
	Checks     map[string]Checker
	Location   *time.Location
}

// Options configure the middleware chain.
type Options struct {
	DeviceKey   string
	CORSOrigins []string
	Limiter     httpmiddleware.Limiter
	Logger      *slog.Logger
	Production  bool
}

var registerBindings sync.Once

// NewRouter builds the gin engine with every route mounted.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	registerBindings.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := validate.Register(v); err != nil {
				panic(err)
			}
		}
	})
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if h.Location == nil {
		h.Location = time.Local
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(opts.Logger, "/healthz", "/metrics"))
	r.Use(corsMiddleware(opts.CORSOrigins))
	r.Use(securityHeaders(opts.Production))
	r.Use(metrics.GinMiddleware())
	if opts.Limiter != nil {
		r.Use(httpmiddleware.Middleware(opts.Limiter, opts.DeviceKey))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", auth.OptionalUserAuth(h.Issuer), h.register)
	authGroup.POST("/login", h.login)
	authGroup.POST("/refresh", h.refresh)
	authGroup.GET("/me", auth.UserAuth(h.Issuer), h.me)

	device := api.Group("", auth.DeviceKey(opts.DeviceKey))
	device.POST("/attendance/mark", h.ingest)
	device.GET("/activeClass", h.activeClass)
	device.GET("/currentTeacher", h.currentTeacher)

	user := api.Group("", auth.UserAuth(h.Issuer))
	user.GET("/session", h.getSession)
	user.POST("/session", h.setSession)
	user.DELETE("/session", h.deactivateSession)

	user.GET("/attendance", h.listBySubject)
	user.GET("/attendance/view", h.listBySlot)
	user.POST("/attendance", h.markManual)
	user.GET("/attendance/export", h.export)
	user.GET("/attendance/dates", h.dates)
	user.GET("/attendance/dates/:date/subjects", h.subjectsOnDate)

	user.GET("/timetables", h.timetable)
	user.GET("/subjects", h.subjects)
	user.GET("/teacher/subjects", h.teacherSubjects)
	user.GET("/students", h.students)
	user.GET("/students/:uid", h.student)
	if h.Hub != nil {
		user.GET("/live", h.liveFeed)
	}

	admin := user.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.PUT("/timetables/:day", h.putTimetable)
	admin.GET("/users", h.roster)
	admin.PUT("/users/:id/subjects", h.setUserSubjects)
	admin.GET("/scans", h.scans)

	return r
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	body := gin.H{}
	status := http.StatusOK
	for name, check := range h.Checks {
		ok := check != nil && check.Healthy(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	if status == http.StatusOK {
		body["status"] = "ok"
	} else {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// liveFeed streams dashboard events, limited for teachers to the ones they may read.
func (h *Handler) liveFeed(c *gin.Context) {
	id := actor(c)
	var allow live.Filter
	if !id.IsAdmin() {
		acct, err := h.Users.Get(c.Request.Context(), id.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		allow = live.OwnedBy(acct.CanSee)
	}
	h.Hub.Serve(c, allow)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", auth.DeviceKeyHeader},
		ExposeHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:        24 * time.Hour,
	}
	// Credentials are only offered to origins that were named explicitly.
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func securityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if production {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
