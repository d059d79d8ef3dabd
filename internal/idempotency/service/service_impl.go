package service

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	idempotencydomain "github.com/smallbiznis/tollgate/internal/idempotency/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const admitKeyPrefix = "tollgate:admit:"

type ServiceParam struct {
	fx.In

	Log    *zap.Logger
	Client *redis.Client
	Clock  clock.Clock
	Config config.Config
}

type Service struct {
	log    *zap.Logger
	client *redis.Client
	clock  clock.Clock

	windowTTL time.Duration
	clockSkew time.Duration
}

func NewService(p ServiceParam) idempotencydomain.Service {
	return &Service{
		log:    p.Log.Named("idempotency.service"),
		client: p.Client,
		clock:  p.Clock,

		windowTTL: p.Config.Idempotency.WindowTTL,
		clockSkew: p.Config.Idempotency.ClockSkew,
	}
}

// Admit validates the event and claims its ID in the admission window.
// SETNX makes the claim atomic: under concurrent replays exactly one
// caller observes Accepted and every other observes Duplicate.
func (s *Service) Admit(ctx context.Context, req idempotencydomain.AdmitRequest) (idempotencydomain.AdmitResult, error) {
	if reason := s.validate(req); reason != "" {
		return idempotencydomain.AdmitResult{
			Decision: idempotencydomain.DecisionRejected,
			Reason:   reason,
		}, nil
	}

	key := admitKeyPrefix + strings.TrimSpace(req.EventID)
	claimed, err := s.client.SetNX(ctx, key, s.clock.Now().Format(time.RFC3339Nano), s.windowTTL).Result()
	if err != nil {
		s.log.Error("admission store unreachable", zap.Error(err))
		return idempotencydomain.AdmitResult{}, idempotencydomain.ErrStoreUnavailable
	}

	if !claimed {
		return idempotencydomain.AdmitResult{Decision: idempotencydomain.DecisionDuplicate}, nil
	}
	return idempotencydomain.AdmitResult{Decision: idempotencydomain.DecisionAccepted}, nil
}

// Release frees a claimed event ID so the producer's retry can re-admit it.
func (s *Service) Release(ctx context.Context, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil
	}
	if err := s.client.Del(ctx, admitKeyPrefix+eventID).Err(); err != nil {
		s.log.Error("admission claim not released",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return idempotencydomain.ErrStoreUnavailable
	}
	return nil
}

func (s *Service) validate(req idempotencydomain.AdmitRequest) string {
	if strings.TrimSpace(req.EventID) == "" {
		return "missing_event_id"
	}
	if strings.TrimSpace(req.AccountID) == "" {
		return "missing_account_id"
	}
	if strings.TrimSpace(req.Type) == "" {
		return "missing_event_type"
	}
	if req.Quantity <= 0 {
		return "invalid_quantity"
	}
	if req.OccurredAt.IsZero() {
		return "missing_timestamp"
	}
	if req.OccurredAt.After(s.clock.Now().Add(s.clockSkew)) {
		return "timestamp_in_future"
	}
	return ""
}
