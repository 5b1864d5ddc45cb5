package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zodrickjohn/Recuria/internal/candidate"
	"github.com/zodrickjohn/Recuria/internal/logger"
	"github.com/zodrickjohn/Recuria/internal/metrics"
)

// ErrNoPhone is returned when the candidate record has no number to dial.
var ErrNoPhone = errors.New("candidate has no phone number")

// Dialer places an outbound call and returns its call SID.
type Dialer interface {
	Dial(ctx context.Context, to string, candidateUID int64) (string, error)
}

// Caller starts phone screens.
type Caller struct {
	candidates candidate.Store
	dialer     Dialer
	registry   *Registry
	metrics    *metrics.Manager
	logger     *zap.Logger
}

func NewCaller(candidates candidate.Store, dialer Dialer, registry *Registry, m *metrics.Manager, log *zap.Logger) *Caller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Caller{candidates: candidates, dialer: dialer, registry: registry, metrics: m, logger: log.Named("caller")}
}

// Call dials the candidate, remembers the call for stream binding and marks
// the phone screen in progress.
func (c *Caller) Call(ctx context.Context, uid int64) (string, error) {
	log := c.logger.With(zap.Int64(logger.FieldCandidateUID, uid))

	record, err := c.candidates.Get(ctx, uid)
	if err != nil {
		return "", err
	}

	phone := strings.TrimSpace(record.Phone)
	if phone == "" {
		return "", fmt.Errorf("uid %d: %w", uid, ErrNoPhone)
	}

	callSID, err := c.dialer.Dial(ctx, phone, uid)
	if err != nil {
		c.metrics.CallPlaced(false)
		log.Error("call failed to start", zap.Error(err))
		return "", err
	}

	c.registry.Bind(callSID, uid)
	c.metrics.CallPlaced(true)

	if err := c.candidates.UpdateScreening(ctx, uid, candidate.StatusOnly(candidate.ScreenInProgress)); err != nil {
		log.Warn("marking phone screen in progress failed", zap.Error(err))
	}

	log.Info("call placed", zap.String(logger.FieldCallSID, callSID), zap.String("candidate", record.DisplayName()))

	return callSID, nil
}
