package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/smallbiznis/tollgate/internal/config"
	gatingdomain "github.com/smallbiznis/tollgate/internal/gating/domain"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	endpoint   string
	client     *http.Client
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) gatingdomain.Dispatcher {
	return &Service{
		log:        p.Log.Named("gating.service"),
		endpoint:   strings.TrimSpace(p.Config.Gating.Endpoint),
		client:     &http.Client{Timeout: p.Config.Gating.Timeout},
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Dispatch(ctx context.Context, notice gatingdomain.Notice) gatingdomain.Outcome {
	outcome := s.dispatch(ctx, notice)
	s.obsMetrics.RecordGatingDispatched(ctx, string(notice.Signal), string(outcome))
	if outcome != gatingdomain.OutcomeOk {
		s.log.Warn("gating dispatch did not succeed",
			zap.String("account_id", notice.AccountID),
			zap.String("signal", string(notice.Signal)),
			zap.String("outcome", string(outcome)),
		)
	}
	return outcome
}

func (s *Service) dispatch(ctx context.Context, notice gatingdomain.Notice) gatingdomain.Outcome {
	// No endpoint configured means gating is disabled for this deployment.
	if s.endpoint == "" {
		return gatingdomain.OutcomeOk
	}

	body, err := json.Marshal(notice)
	if err != nil {
		return gatingdomain.OutcomeFatal
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return gatingdomain.OutcomeFatal
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return gatingdomain.OutcomeRetryable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return gatingdomain.OutcomeOk
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return gatingdomain.OutcomeRetryable
	default:
		return gatingdomain.OutcomeFatal
	}
}
