package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/candidate"
	"github.com/zodrickjohn/Recuria/internal/screening"
	"github.com/zodrickjohn/Recuria/internal/telephony"
)

// twilioSignature rejects webhook requests whose X-Twilio-Signature does not
// match the public URL and form body. It is a no-op without a validator.
func (s *Server) twilioSignature(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.deps.Signatures == nil {
			return next(c)
		}

		req := c.Request()
		if err := req.ParseForm(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
		}

		params := make(map[string]string, len(req.PostForm))
		for key, values := range req.PostForm {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		// Twilio signs the URL it called, which is the public one, not ours.
		fullURL := "https://" + s.cfg.PublicHost + req.URL.RequestURI()
		if !s.deps.Signatures.Valid(fullURL, params, req.Header.Get(telephony.SignatureHeader)) {
			s.logger.Warn("rejecting unsigned webhook", zap.String("url", fullURL))
			return echo.NewHTTPError(http.StatusForbidden, "invalid twilio signature")
		}

		return next(c)
	}
}

func callError(err error) error {
	switch {
	case errors.Is(err, candidate.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Candidate not found")
	case errors.Is(err, screening.ErrNoPhone):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusBadGateway, "placing call failed").SetInternal(err)
	}
}
