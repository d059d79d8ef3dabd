package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/tollgate/internal/event/domain"
	idempotencydomain "github.com/smallbiznis/tollgate/internal/idempotency/domain"
	"github.com/smallbiznis/tollgate/internal/pipeline"
)

// IngestEvent is the producer-facing admission endpoint. Admission decides
// synchronously; rating and settlement happen on the pipeline workers.
func (s *Server) IngestEvent(c *gin.Context) {
	var req eventdomain.RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if limit := s.ingestLimiter.Allow(ctx, req.AccountID); !limit.Allowed {
		s.obsMetrics.RecordEventThrottled(ctx, req.Type)
		retryAfter := int(limit.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
			Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many events for account",
			},
		})
		return
	}

	result, err := s.idempotencySvc.Admit(ctx, idempotencydomain.AdmitRequest{
		EventID:    req.ID,
		AccountID:  req.AccountID,
		Type:       req.Type,
		Quantity:   req.Quantity,
		OccurredAt: req.OccurredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	switch result.Decision {
	case idempotencydomain.DecisionRejected:
		AbortWithError(c, newValidationError("event", result.Reason, "invalid event"))
		return
	case idempotencydomain.DecisionDuplicate:
		s.obsMetrics.RecordEventDuplicate(ctx, req.Type)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	event, err := s.eventSvc.Record(ctx, req)
	if err != nil {
		// The claim must not outlive a failed ingest: releasing it lets the
		// producer's retry with the same ID be admitted instead of answered
		// as a duplicate of an event that never entered the pipeline.
		_ = s.idempotencySvc.Release(ctx, req.ID)
		AbortWithError(c, err)
		return
	}

	if err := s.pipe.Enqueue(event); err != nil {
		_ = s.idempotencySvc.Release(ctx, req.ID)
		if errors.Is(err, pipeline.ErrQueueFull) {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordEventAdmitted(ctx, event.Type)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "event": event})
}

func (s *Server) ListEvents(c *gin.Context) {
	pageSize := 0
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, invalidRequestError())
			return
		}
		pageSize = parsed
	}

	resp, err := s.eventSvc.List(c.Request.Context(), eventdomain.ListEventsRequest{
		AccountID: c.Query("account_id"),
		Status:    c.Query("status"),
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
