package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/tollgate/internal/event/domain"
	"github.com/smallbiznis/tollgate/pkg/db/option"
	"github.com/smallbiznis/tollgate/pkg/db/pagination"
	"github.com/smallbiznis/tollgate/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	eventrepo repository.Repository[eventdomain.UsageEvent]
}

func NewService(p ServiceParam) eventdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("event.service"),

		eventrepo: repository.ProvideStore[eventdomain.UsageEvent](p.DB),
	}
}

func (s *Service) Record(ctx context.Context, req eventdomain.RecordEventRequest) (*eventdomain.UsageEvent, error) {
	eventID := strings.TrimSpace(req.ID)
	if eventID == "" {
		return nil, eventdomain.ErrInvalidEvent
	}

	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		return nil, eventdomain.ErrInvalidAccount
	}

	if strings.TrimSpace(req.Type) == "" {
		return nil, eventdomain.ErrInvalidEvent
	}
	if req.Quantity <= 0 {
		return nil, eventdomain.ErrInvalidQuantity
	}
	if req.OccurredAt.IsZero() {
		return nil, eventdomain.ErrInvalidTimestamp
	}

	now := time.Now().UTC()
	record := &eventdomain.UsageEvent{
		ID:         eventID,
		AccountID:  accountID,
		Type:       strings.TrimSpace(req.Type),
		Quantity:   req.Quantity,
		OccurredAt: req.OccurredAt.UTC(),
		Status:     eventdomain.EventStatusReceived,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	// Replays that slipped past the admission window land on the primary
	// key and are dropped without mutating the stored event.
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		return s.Get(ctx, eventID)
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, eventID string) (*eventdomain.UsageEvent, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, eventdomain.ErrInvalidEvent
	}

	record, err := s.eventrepo.FindOne(ctx, &eventdomain.UsageEvent{ID: eventID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, eventdomain.ErrEventNotFound
	}
	return record, nil
}

func (s *Service) Park(ctx context.Context, eventID, reason string) error {
	return s.eventrepo.Update(ctx, eventID, map[string]any{
		"status":      eventdomain.EventStatusParked,
		"park_reason": strings.TrimSpace(reason),
		"updated_at":  time.Now().UTC(),
	})
}

func (s *Service) MarkRated(ctx context.Context, eventID string) error {
	return s.eventrepo.Update(ctx, eventID, map[string]any{
		"status":     eventdomain.EventStatusRated,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Service) List(ctx context.Context, req eventdomain.ListEventsRequest) (eventdomain.ListEventsResponse, error) {
	filter := &eventdomain.UsageEvent{}
	if accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID)); err == nil && accountID != 0 {
		filter.AccountID = accountID
	}
	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = eventdomain.EventStatus(status)
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	items, err := s.eventrepo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  pageSize,
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
	if err != nil {
		return eventdomain.ListEventsResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, pageSize, func(e *eventdomain.UsageEvent) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID})
		return token
	})

	return eventdomain.ListEventsResponse{
		PageInfo: *pageInfo,
		Events:   items,
	}, nil
}
