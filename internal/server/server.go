// Package server exposes the call server over HTTP: health and metrics,
// the Twilio incoming-call webhook, the media-stream websocket and the
// endpoint that starts a phone screen.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/candidate"
	"github.com/zodrickjohn/Recuria/internal/logger"
	"github.com/zodrickjohn/Recuria/internal/metrics"
	"github.com/zodrickjohn/Recuria/internal/screening"
	"github.com/zodrickjohn/Recuria/internal/telephony"
)

const (
	defaultListen          = ":3000"
	defaultGreeting        = "Please hold while we connect you to our recruiter."
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 2 * time.Minute

	mediaStreamPath  = "/media-stream"
	incomingCallPath = "/incoming-call"
)

// Sessions runs one screening session per media stream.
type Sessions interface {
	Serve(ctx context.Context, stream screening.MediaStream) *screening.Session
}

// Caller starts an outbound phone screen.
type Caller interface {
	Call(ctx context.Context, uid int64) (string, error)
}

// Config describes the public face of the server.
type Config struct {
	Listen string
	// PublicHost is the host name Twilio reaches us on, without scheme.
	PublicHost      string
	Greeting        string
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Dependencies wire the server to the screening pipeline. Signatures is
// optional; without it webhook requests are not authenticated.
type Dependencies struct {
	Sessions   Sessions
	Caller     Caller
	Signatures *telephony.SignatureValidator
	Tracker    *screening.Tracker
	Metrics    *metrics.Manager
}

type Server struct {
	cfg      Config
	deps     Dependencies
	echo     *echo.Echo
	upgrader websocket.Upgrader
	logger   *zap.Logger

	// sessions outlive the upgrade request; they end on stop, drop or shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(cfg Config, deps Dependencies, log *zap.Logger) (*Server, error) {
	if deps.Sessions == nil {
		return nil, errors.New("session coordinator is required")
	}
	cfg.PublicHost = strings.TrimSuffix(strings.TrimSpace(cfg.PublicHost), "/")
	if cfg.PublicHost == "" {
		return nil, errors.New("public host is required")
	}
	if strings.Contains(cfg.PublicHost, "://") {
		return nil, fmt.Errorf("public host %q must not carry a scheme", cfg.PublicHost)
	}
	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.Greeting == "" {
		cfg.Greeting = defaultGreeting
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:  cfg,
		deps: deps,
		echo: echo.New(),
		upgrader: websocket.Upgrader{
			// Twilio does not send an Origin header we could check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  log.Named("server"),
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestLogger())
	s.routes()

	return s, nil
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}
	s.echo.POST(incomingCallPath, s.handleIncomingCall, s.twilioSignature)
	s.echo.GET(mediaStreamPath, s.handleMediaStream)
	s.echo.POST("/api/candidates/:uid/call", s.handleCallCandidate)
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("listen", s.cfg.Listen), zap.String("public_host", s.cfg.PublicHost))
		errCh <- s.echo.Start(s.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests, cancels live sessions and waits for
// them to finish their transcript and evaluation work.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	canceled := s.deps.Tracker.CancelAll()
	s.logger.Info("shutting down", zap.Int("sessions", canceled))

	if !s.deps.Tracker.Wait(ctx) {
		s.logger.Warn("sessions still finishing at shutdown", zap.Int("sessions", s.deps.Tracker.Count()))
	}
	s.cancel()

	return err
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) handleIncomingCall(c echo.Context) error {
	params := map[string]string{}
	if raw := strings.TrimSpace(c.QueryParam(telephony.ParamCandidateUID)); raw != "" {
		uid, err := candidate.ParseUID(raw)
		if err != nil {
			s.logger.Warn("ignoring invalid candidate uid on incoming call", zap.String("value", raw), zap.Error(err))
		} else {
			params[telephony.ParamCandidateUID] = strconv.FormatInt(uid, 10)
		}
	}

	doc, err := telephony.ConnectStreamTwiML(s.cfg.Greeting, s.streamURL(), params)
	if err != nil {
		s.logger.Error("rendering twiml", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "rendering twiml failed")
	}

	s.logger.Info("incoming call",
		zap.String(logger.FieldCallSID, c.FormValue("CallSid")),
		zap.String("answered_by", c.FormValue("AnsweredBy")),
	)

	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, []byte(doc))
}

func (s *Server) handleMediaStream(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Warn("media stream upgrade failed", zap.Error(err))
		return nil
	}

	stream := telephony.NewStream(conn, s.cfg.WriteTimeout)
	defer stream.Close()

	s.deps.Sessions.Serve(s.baseCtx, stream)
	return nil
}

type callResponse struct {
	Message string `json:"message"`
	CallSID string `json:"call_sid"`
}

func (s *Server) handleCallCandidate(c echo.Context) error {
	if s.deps.Caller == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "outbound calling is not configured")
	}

	uid, err := candidate.ParseUID(c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sid, err := s.deps.Caller.Call(c.Request().Context(), uid)
	if err != nil {
		return callError(err)
	}

	return c.JSON(http.StatusOK, callResponse{Message: "Call initiated successfully", CallSID: sid})
}

func (s *Server) streamURL() string {
	return "wss://" + s.cfg.PublicHost + mediaStreamPath
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				s.logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			s.logger.Debug("request", fields...)
			return nil
		},
	})
}
