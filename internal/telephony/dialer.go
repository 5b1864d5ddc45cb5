package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/zodrickjohn/Recuria/internal/logger"
)

type callCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// DialerConfig describes the outbound calling account.
type DialerConfig struct {
	AccountSID string
	AuthToken  string
	// From is the caller ID in E.164 form.
	From string
	// WebhookURL is the absolute URL Twilio fetches TwiML from once the call connects.
	WebhookURL       string
	MachineDetection bool
}

// Dialer places outbound screening calls.
type Dialer struct {
	calls  callCreator
	cfg    DialerConfig
	logger *zap.Logger
}

// NewDialer builds a dialer backed by the Twilio REST API.
func NewDialer(cfg DialerConfig, log *zap.Logger) (*Dialer, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("twilio account sid and auth token are required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return newDialer(client.Api, cfg, log)
}

func newDialer(calls callCreator, cfg DialerConfig, log *zap.Logger) (*Dialer, error) {
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("twilio caller id is required")
	}
	if _, err := url.ParseRequestURI(cfg.WebhookURL); err != nil {
		return nil, fmt.Errorf("invalid webhook url %q: %w", cfg.WebhookURL, err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Dialer{calls: calls, cfg: cfg, logger: logger.WithProvider(log.Named("dialer"), "twilio", "")}, nil
}

// Dial calls the given number and returns the call SID. The candidate UID
// rides on the webhook URL so the TwiML handler can attach it to the stream.
func (d *Dialer) Dial(ctx context.Context, to string, candidateUID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	to = strings.TrimSpace(to)
	if to == "" {
		return "", errors.New("destination number is empty")
	}

	webhook, err := WebhookURLFor(d.cfg.WebhookURL, candidateUID)
	if err != nil {
		return "", err
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(d.cfg.From)
	params.SetUrl(webhook)
	params.SetMethod("POST")
	if d.cfg.MachineDetection {
		params.SetMachineDetection("Enable")
	}

	d.logger.Debug("creating call", zap.Int64(logger.FieldCandidateUID, candidateUID), zap.String("url", webhook))

	call, err := d.calls.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return "", errors.New("create call: response has no call sid")
	}

	d.logger.Info("call created", zap.String(logger.FieldCallSID, *call.Sid), zap.Int64(logger.FieldCandidateUID, candidateUID))

	return *call.Sid, nil
}

// WebhookURLFor appends the candidate UID query parameter to base.
func WebhookURLFor(base string, candidateUID int64) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse webhook url: %w", err)
	}

	q := u.Query()
	q.Set(ParamCandidateUID, strconv.FormatInt(candidateUID, 10))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
