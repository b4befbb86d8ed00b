package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/arl/statsviz"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	jwtlib "tourism_media/internal/lib/jwt"
	"tourism_media/internal/lib/logger/sl"
	appmiddleware "tourism_media/internal/middleware"
	httprouters "tourism_media/internal/transport/http"
	"tourism_media/internal/transport/http/dto/response"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

type Options struct {
	Host          string
	Port          string
	JWTSecret     string
	SessionSecret string
	// UploadsDir и UploadsURL раздают сохраненные файлы как статику
	UploadsDir string
	UploadsURL string
	// BodyLimit ограничение размера тела запроса, например "64M"
	BodyLimit string
}

type Server struct {
	m       *http.ServeMux
	log     *slog.Logger
	e       *echo.Echo
	routers *httprouters.Routers
	opts    Options
}

func New(log *slog.Logger, opts Options, routers *httprouters.Routers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	validate := validator.New()
	e.Validator = &CustomValidator{validator: validate}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(appmiddleware.PrometheusMetrics)

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	store := sessions.NewCookieStore([]byte(opts.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	e.Use(session.Middleware(store))

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("URI", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote ip", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, sl.Err(v.Error))
				log.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
				return nil
			}
			log.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)

			return nil
		},
	}))

	mux := http.NewServeMux()
	if err := statsviz.Register(mux); err != nil {
		log.Warn("statsviz start with error", sl.Err(err))
	}

	return &Server{
		m:       mux,
		log:     log,
		e:       e,
		routers: routers,
		opts:    opts,
	}
}

// Handler нужен для тестов через httptest
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) MustRun() {
	const op = "http.Server.MustRun"

	s.log.Info("starting http server", slog.String("op", op), slog.String("addr", s.addr()))

	if err := s.Start(); err != nil {
		panic(err)
	}
}

func (s *Server) Start() error {
	const op = "http.Server.Start"

	if err := s.e.Start(s.addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server stopped: %w", op, err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	const op = "http.Server.Stop"

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s.log.Info("stopping http server", slog.String("op", op))

	if err := s.e.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s could not shutdown server gracefuly: %w", op, err)
	}

	return nil
}

func (s *Server) addr() string {
	return fmt.Sprintf("%s:%s", s.opts.Host, s.opts.Port)
}

// adminOnly пропускает только токены с ролью admin, сам токен проверяет echo-jwt
func (s *Server) adminOnly() []echo.MiddlewareFunc {
	verify := echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(s.opts.JWTSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(jwtlib.Claims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized,
				response.ErrorResponseWithDetails("unauthorized", "valid bearer token required"))
		},
	})

	requireRole := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, _ := c.Get("user").(*jwt.Token)
			claims, err := jwtlib.AdminFromToken(token)
			if err != nil {
				return c.JSON(http.StatusForbidden,
					response.ErrorResponseWithDetails("forbidden", "admin access required"))
			}

			c.Set("admin", claims.Subject)
			return next(c)
		}
	}

	return []echo.MiddlewareFunc{verify, requireRole}
}

func (s *Server) BuildRouters() {
	admin := s.adminOnly()

	s.e.GET("/health", s.routers.Health)
	s.e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if s.opts.UploadsDir != "" {
		s.e.Static(uploadsPrefix(s.opts.UploadsURL), s.opts.UploadsDir)
	}

	debug := s.e.Group("/debug")
	{
		debug.GET("/statsviz/", echo.WrapHandler(s.m))
		debug.GET("/statsviz/*", echo.WrapHandler(s.m))
	}

	swagger := s.e.Group("/swag")
	{
		swagger.GET("/swagger/*", echoSwagger.WrapHandler)
	}

	api := s.e.Group("/api/v1")

	places := api.Group("/places")
	{
		places.POST("", s.routers.CreatePlace, admin...)
		places.GET("/:id", s.routers.GetPlace)
		places.DELETE("/:id", s.routers.DeletePlace, admin...)
		places.POST("/:id/ratings", s.routers.AddRating)
		places.GET("/:id/ratings", s.routers.ListRatings)
		places.POST("/:id/rollup", s.routers.RecomputeRating, admin...)

		// галерею читают все, меняют только администраторы
		places.GET("/:id/gallery", s.routers.ListGallery)
		places.POST("/:id/photos", s.routers.AddPhotos, admin...)
		places.POST("/:id/photos/principal", s.routers.ReplacePrincipal, admin...)
		places.PUT("/:id/photos/:photo_id/principal", s.routers.SetPrincipal, admin...)
		places.PATCH("/:id/photos/:photo_id", s.routers.UpdatePhotoDescription, admin...)
		places.DELETE("/:id/photos/:photo_id", s.routers.DeletePhoto, admin...)
	}

	experiences := api.Group("/experiences")
	{
		experiences.POST("/terms", s.routers.AcceptTerms)
		experiences.POST("", s.routers.SubmitExperience)
		experiences.GET("", s.routers.ListExperiences)
		experiences.GET("/pending", s.routers.ListPending, admin...)
		experiences.GET("/stats", s.routers.ExperienceStats, admin...)
		experiences.GET("/:id", s.routers.GetExperience)
		experiences.POST("/:id/view", s.routers.IncrementView)
		experiences.POST("/:id/decision", s.routers.DecideExperience, admin...)
	}
}

func uploadsPrefix(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/uploads"
	}
	return u.Path
}
