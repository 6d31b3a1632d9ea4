package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/gologger"
	"github.com/danthegoodman1/parquetlayout/optimizer"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

var logger = gologger.NewLogger()

type HTTPServer struct {
	Echo *echo.Echo

	store datastore.DataStore
	// pool backs the layout catalog, nil keeps manifests in output directories
	pool     *pgxpool.Pool
	defaults optimizer.Config
	root     string
}

type Options struct {
	Store    datastore.DataStore
	Pool     *pgxpool.Pool
	Defaults optimizer.Config
	// Root confines request paths on local disk, empty allows any path.
	// Relative request paths are taken from it.
	Root string
}

type CustomValidator struct {
	validator *validator.Validate
}

// NoEscapeJSONSerializer writes JSON without HTML escaping, so s3:// paths and
// key values come back as sent.
type NoEscapeJSONSerializer struct{}

func NewHTTPServer(opts Options) *HTTPServer {
	s := &HTTPServer{
		Echo:     echo.New(),
		store:    opts.Store,
		pool:     opts.Pool,
		defaults: opts.Defaults,
		root:     opts.Root,
	}
	if s.store == nil {
		s.store = datastore.NewDataStore()
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.JSONSerializer = &NoEscapeJSONSerializer{}

	s.Echo.Use(CreateReqContext)
	s.Echo.Use(LoggerMiddleware)
	s.Echo.Use(middleware.CORS())
	s.Echo.Validator = &CustomValidator{validator: validator.New()}

	// technical - no auth
	s.Echo.GET("/hc", s.HealthCheck)

	s.Echo.POST("/inspect", ccHandler(s.InspectHandler))
	s.Echo.POST("/simulate", ccHandler(s.SimulateHandler))
	s.Echo.POST("/optimize", ccHandler(s.OptimizeHandler))
	s.Echo.GET("/files", ccHandler(s.ListFilesHandler))

	return s
}

// Start serves h2c on addr in the background.
func (s *HTTPServer) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("error creating tcp listener: %w", err)
	}
	s.Echo.Listener = listener
	go func() {
		logger.Info().Msg("starting h2c server on " + listener.Addr().String())
		err := s.Echo.StartH2CServer("", &http2.Server{})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("h2c server stopped")
		}
	}()
	return nil
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func ValidateRequest(c echo.Context, s interface{}) error {
	if err := c.Bind(s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.Validate(s)
}

// confine maps a request path onto the server's data root.
func (s *HTTPServer) confine(path string) (string, error) {
	return datastore.Confine(s.root, path)
}

func (*HTTPServer) HealthCheck(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (*NoEscapeJSONSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (*NoEscapeJSONSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body: "+err.Error()).SetInternal(err)
	}
	return nil
}

// LoggerMiddleware logs one line per request, at warn level for 5xx so audit
// failures surface without DEBUG.
func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		req, res := c.Request(), c.Response()

		ev := zerolog.Ctx(req.Context()).Debug()
		if res.Status >= http.StatusInternalServerError {
			ev = zerolog.Ctx(req.Context()).Warn()
		}
		ev.Str("method", req.Method).
			Str("route", c.Path()).
			Str("uri", req.RequestURI).
			Str("remote_ip", c.RealIP()).
			Int("status", res.Status).
			Int64("bytes_in", req.ContentLength).
			Int64("bytes_out", res.Size).
			Dur("latency", time.Since(start)).
			Msg("handled request")
		return nil
	}
}
