package servers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
	"github.com/Deepreo/kronos/modules/auth"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"

	"go.elastic.co/apm/module/apmfiber/v2"
	"go.elastic.co/apm/v2"
)

const (
	DefaultReadTimeout     = 3 * time.Second
	DefaultWriteTimeout    = 3 * time.Second
	DefaultServerHeader    = "Kronos"
	DefaultBodyLimit       = 1 * 1024 * 1024 // 1 MB
	DefaultPort            = "8080"
	DefaultAllowedOrigins  = "*"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultSwaggerUIPath   = "/api/swagger/*"
	DefaultHost            = "localhost"
)

type HttpServer struct {
	app    *fiber.App
	cfg    *HttpServerConfig
	logger *slog.Logger

	mu          sync.RWMutex
	middlewares []core.Middleware
}

var _ core.Server = (*HttpServer)(nil)

type HttpServerConfig struct {
	ReadTimeout    string `mapstructure:"read_timeout"`
	WriteTimeout   string `mapstructure:"write_timeout"`
	ServerHeader   string `mapstructure:"server_header"`
	BodyLimit      int    `mapstructure:"body_limit"`
	ErrorHandler   fiber.ErrorHandler
	Logger         *slog.Logger
	Port           string   `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	AllowedOrigins string   `mapstructure:"allowed_origins"`
	Features       Features `mapstructure:"features"`
}

type Features struct {
	RequestID   RequestID   `mapstructure:"request_id"`
	Proxy       Proxy       `mapstructure:"proxy"`
	RateLimit   RateLimit   `mapstructure:"rate_limit"`
	HealthCheck HealthCheck `mapstructure:"health_check"`
	Etag        Etag        `mapstructure:"etag"`
	ElasticAPM  ElasticAPM  `mapstructure:"elastic_apm"`
	SwaggerUI   SwaggerUI   `mapstructure:"swagger_ui"`
}
type Etag struct {
	Enabled bool `mapstructure:"enabled"`
}

type ElasticAPM struct {
	Enabled bool `mapstructure:"enabled"`
}

type RequestID struct {
	Enabled bool `mapstructure:"enabled"`
}

type Proxy struct {
	Enabled        bool     `mapstructure:"enabled"`
	ProxyHeader    string   `mapstructure:"proxy_header"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type RateLimit struct {
	Enabled    bool   `mapstructure:"enabled"`
	Max        int    `mapstructure:"max"`
	Expiration string `mapstructure:"expiration"`
}

type HealthCheck struct {
	Enabled bool `mapstructure:"enabled"`
}

// SwaggerUI serves the swagger UI for the OpenAPI document found at DocURL.
type SwaggerUI struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	DocURL  string `mapstructure:"doc_url"`
}

func WithConfig(cfg *HttpServerConfig) func(*HttpServerConfig) {
	return func(s *HttpServerConfig) {
		if cfg.ReadTimeout != "" {
			s.ReadTimeout = cfg.ReadTimeout
		}
		if cfg.WriteTimeout != "" {
			s.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.ServerHeader != "" {
			s.ServerHeader = cfg.ServerHeader
		}
		if cfg.BodyLimit != 0 {
			s.BodyLimit = cfg.BodyLimit
		}
		if cfg.ErrorHandler != nil {
			s.ErrorHandler = cfg.ErrorHandler
		}
		if cfg.Logger != nil {
			s.Logger = cfg.Logger
		}
		if cfg.Port != "" {
			s.Port = cfg.Port
		}
		if cfg.AllowedOrigins != "" {
			s.AllowedOrigins = cfg.AllowedOrigins
		}
		s.Features = cfg.Features
		if cfg.Features.SwaggerUI.Path == "" {
			s.Features.SwaggerUI.Path = DefaultSwaggerUIPath
		}
		if cfg.Host != "" {
			s.Host = cfg.Host
		}
	}
}

func WithLogger(logger *slog.Logger) func(*HttpServerConfig) {
	return func(s *HttpServerConfig) {
		s.Logger = logger
	}
}

func NewHttpServer(options ...func(*HttpServerConfig)) (*HttpServer, error) {
	cfg := &HttpServerConfig{
		ReadTimeout:    DefaultReadTimeout.String(),
		WriteTimeout:   DefaultWriteTimeout.String(),
		ServerHeader:   DefaultServerHeader,
		BodyLimit:      DefaultBodyLimit,
		Port:           DefaultPort,
		AllowedOrigins: DefaultAllowedOrigins,
		Host:           DefaultHost,
	}
	for _, option := range options {
		option(cfg)
	}
	fiberConfig, err := buildFiberConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	server := &HttpServer{
		app:    fiber.New(fiberConfig),
		cfg:    cfg,
		logger: logger,
	}
	if err := server.applyMiddlewares(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	return server, nil
}

func (s *HttpServer) applyMiddlewares() error {
	s.app.Use(recover.New())
	s.app.Use(helmet.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Accept, Authorization, Content-Type",
		ExposeHeaders:    "Content-Length, X-Request-ID",
		AllowCredentials: s.cfg.AllowedOrigins != "*",
		MaxAge:           300,
	}))
	if s.cfg.Features.RequestID.Enabled {
		s.app.Use(requestid.New())
	}
	if s.cfg.Features.RateLimit.Enabled {
		expiration := 60 * time.Second
		if s.cfg.Features.RateLimit.Expiration != "" {
			d, err := time.ParseDuration(s.cfg.Features.RateLimit.Expiration)
			if err != nil {
				return fmt.Errorf("invalid rate_limit.expiration: %s", s.cfg.Features.RateLimit.Expiration)
			}
			expiration = d
		}
		s.app.Use(limiter.New(limiter.Config{
			Max:        s.cfg.Features.RateLimit.Max,
			Expiration: expiration,
		}))
	}
	if s.cfg.Features.HealthCheck.Enabled {
		s.app.Use(healthcheck.New())
	}
	if s.cfg.Features.Etag.Enabled {
		s.app.Use(etag.New())
	}
	if s.cfg.Features.ElasticAPM.Enabled {
		s.app.Use(apmfiber.Middleware())
	}
	if s.cfg.Features.SwaggerUI.Enabled {
		path := s.cfg.Features.SwaggerUI.Path
		if path == "" {
			path = DefaultSwaggerUIPath
		}
		s.app.Get(path, swagger.New(swagger.Config{
			URL:             s.cfg.Features.SwaggerUI.DocURL,
			TryItOutEnabled: true,
		}))
	}
	return nil
}

func (s *HttpServer) GetApp() *fiber.App {
	return s.app
}

func (s *HttpServer) Run() error {
	return s.app.Listen(s.Addr())
}

// Addr is the address Run listens on.
func (s *HttpServer) Addr() string {
	if s.cfg.Features.Proxy.Enabled {
		return fmt.Sprintf(":%s", s.cfg.Port)
	}
	return fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Use adds middleware around every registered endpoint handler. Middlewares
// run in the order they were added.
func (s *HttpServer) Use(middleware ...core.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, middleware...)
}

func (s *HttpServer) chain(handler core.HandlerFunc) core.HandlerFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		handler = s.middlewares[i](handler)
	}
	return handler
}

// Mount serves a plain net/http handler, e.g. the metrics endpoint, at path.
func (s *HttpServer) Mount(path string, handler http.Handler) {
	s.app.Get(path, adaptor.HTTPHandler(handler))
}

func buildFiberConfig(cfg *HttpServerConfig) (fiber.Config, error) {
	var config fiber.Config
	if cfg.ReadTimeout != "" {
		readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
		if err != nil {
			return fiber.Config{}, fmt.Errorf("invalid read_timeout: %s", cfg.ReadTimeout)
		}
		config.ReadTimeout = readTimeout
	} else {
		config.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout != "" {
		writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
		if err != nil {
			return fiber.Config{}, fmt.Errorf("invalid write_timeout: %s", cfg.WriteTimeout)
		}
		config.WriteTimeout = writeTimeout
	} else {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ServerHeader != "" {
		config.ServerHeader = cfg.ServerHeader
	} else {
		config.ServerHeader = DefaultServerHeader
	}
	if cfg.BodyLimit != 0 {
		config.BodyLimit = cfg.BodyLimit
	} else {
		config.BodyLimit = DefaultBodyLimit
	}
	if cfg.Features.Proxy.Enabled {
		if cfg.Features.Proxy.ProxyHeader != "" {
			config.ProxyHeader = cfg.Features.Proxy.ProxyHeader
		}
		if len(cfg.Features.Proxy.TrustedProxies) > 0 {
			config.EnableTrustedProxyCheck = true
			config.TrustedProxies = cfg.Features.Proxy.TrustedProxies
		}
	}
	if cfg.ErrorHandler != nil {
		config.ErrorHandler = cfg.ErrorHandler
	}
	config.DisableStartupMessage = true
	return config, nil
}

func (s *HttpServer) Register(method, path string, handler core.HandlerFunc, newRequest func() any) {
	genHandler := func(c *fiber.Ctx) error {
		req := newRequest()

		if len(c.Body()) > 0 {
			if err := c.BodyParser(req); err != nil && !errors.Is(fiber.ErrUnprocessableEntity, err) {
				return s.badRequest(c, err)
			}
		}
		if err := c.ParamsParser(req); err != nil {
			return s.badRequest(c, err)
		}
		if err := c.QueryParser(req); err != nil {
			return s.badRequest(c, err)
		}
		if err := c.ReqHeaderParser(req); err != nil {
			return s.badRequest(c, err)
		}

		if validator, ok := req.(core.Request); ok {
			if err := validator.Validate(); err != nil {
				return s.writeError(c, errors.ValidationError(err), "")
			}
		}

		ctx := auth.WithToken(c.UserContext(), c.Get(fiber.HeaderAuthorization))

		var traceID string
		if tx := apm.TransactionFromContext(ctx); tx != nil {
			traceID = tx.TraceContext().Trace.String()
		}

		res, err := s.chain(handler)(ctx, req)
		if err != nil {
			return s.writeError(c, err, traceID)
		}
		return c.JSON(core.BaseResponse[any]{Success: true, Data: res})
	}

	s.app.Add(method, path, genHandler)
}

func (s *HttpServer) badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(core.BaseResponse[any]{
		Error: &core.APIError{Message: err.Error(), Code: "BAD_REQUEST"},
	})
}

// writeError maps the error level to an HTTP status. Server side failures
// hide their message behind the trace ID.
func (s *HttpServer) writeError(c *fiber.Ctx, err error, traceID string) error {
	var resp core.BaseResponse[any]

	var extendErr *errors.ExtendError
	if !errors.As(err, &extendErr) {
		if errors.Is(fiber.ErrNotFound, err) {
			resp.Error = &core.APIError{Message: "Resource not found"}
			return c.Status(fiber.StatusNotFound).JSON(resp)
		}
		extendErr = errors.UnknownError(err)
	}

	resp.Error = &core.APIError{
		Message: extendErr.Error(),
		Code:    extendErr.Code,
	}
	if len(extendErr.Metadata) > 0 {
		resp.Error.Details = extendErr.Metadata
	}

	status := fiber.StatusInternalServerError
	switch extendErr.Level {
	case errors.ERR_VALIDATION, errors.ERR_DOMAIN:
		status = fiber.StatusBadRequest
	case errors.ERR_AUTH:
		status = fiber.StatusUnauthorized
	case errors.ERR_PERMISSION:
		status = fiber.StatusForbidden
	case errors.ERR_NOT_FOUND:
		status = fiber.StatusNotFound
	case errors.ERR_CONFLICT:
		status = fiber.StatusConflict
	case errors.ERR_APPLICATION:
		if extendErr.Code == "" {
			resp.Error.Message = "Service Unavailable"
			resp.Error.TraceID = traceID
		}
		status = fiber.StatusServiceUnavailable
	case errors.ERR_INFRASTRUCTURE:
		resp.Error.Message = "Internal Server Error"
		resp.Error.TraceID = traceID
		if resp.Error.Details == nil {
			resp.Error.Details = "Internal server error, check the logs with trace ID: " + traceID
		}
		status = fiber.StatusBadGateway
	default:
		resp.Error.Message = "Internal Server Error"
		resp.Error.TraceID = traceID
		if resp.Error.Details == nil {
			resp.Error.Details = "Unknown error, check the logs with trace ID: " + traceID
		}
	}
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("admin request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(resp)
}
