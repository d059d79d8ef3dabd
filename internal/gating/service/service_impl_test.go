package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/tollgate/internal/config"
	gatingdomain "github.com/smallbiznis/tollgate/internal/gating/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDispatcher(endpoint string) gatingdomain.Dispatcher {
	return NewService(ServiceParam{
		Log: zap.NewNop(),
		Config: config.Config{
			Gating: config.GatingConfig{Endpoint: endpoint, Timeout: 2 * time.Second},
		},
	})
}

func TestDispatchDeliversNotice(t *testing.T) {
	var got gatingdomain.Notice
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	outcome := newDispatcher(srv.URL).Dispatch(context.Background(), gatingdomain.Notice{
		AccountID: "1888888888888888",
		Signal:    gatingdomain.SignalSuspend,
		Reason:    "balance_depleted",
		At:        time.Now().UTC(),
	})

	assert.Equal(t, gatingdomain.OutcomeOk, outcome)
	assert.Equal(t, "1888888888888888", got.AccountID)
	assert.Equal(t, gatingdomain.SignalSuspend, got.Signal)
}

func TestDispatchClassifiesResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   gatingdomain.Outcome
	}{
		{"server error retries", http.StatusInternalServerError, gatingdomain.OutcomeRetryable},
		{"throttling retries", http.StatusTooManyRequests, gatingdomain.OutcomeRetryable},
		{"bad request is fatal", http.StatusBadRequest, gatingdomain.OutcomeFatal},
		{"not found is fatal", http.StatusNotFound, gatingdomain.OutcomeFatal},
		{"no content is ok", http.StatusNoContent, gatingdomain.OutcomeOk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			outcome := newDispatcher(srv.URL).Dispatch(context.Background(), gatingdomain.Notice{
				AccountID: "1",
				Signal:    gatingdomain.SignalReactivate,
			})
			assert.Equal(t, tt.want, outcome)
		})
	}
}

func TestDispatchUnreachableEndpointIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	outcome := newDispatcher(srv.URL).Dispatch(context.Background(), gatingdomain.Notice{
		AccountID: "1",
		Signal:    gatingdomain.SignalSuspend,
	})
	assert.Equal(t, gatingdomain.OutcomeRetryable, outcome)
}

func TestDispatchWithoutEndpointIsNoop(t *testing.T) {
	outcome := newDispatcher("").Dispatch(context.Background(), gatingdomain.Notice{
		AccountID: "1",
		Signal:    gatingdomain.SignalSuspend,
	})
	assert.Equal(t, gatingdomain.OutcomeOk, outcome)
}
