package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/cashapp/internal/audit/domain"
	auditcontext "github.com/smallbiznis/cashapp/internal/auditcontext"
	"github.com/smallbiznis/cashapp/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo auditdomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("audit.service"),
		repo: p.Repo,
	}
}

// AppendAudit writes a single monotonic entry to the append-only audit log
// (spec.md §4.6). The returned seq is the strictly increasing sequence
// number assigned by the store.
func (s *Service) AppendAudit(ctx context.Context, eventType, source, correlationID string, transactionID *string, data map[string]any) (int64, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return 0, auditdomain.ErrInvalidEventType
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "system"
	}

	if correlationID = strings.TrimSpace(correlationID); correlationID == "" {
		correlationID = auditcontext.CorrelationIDFromContext(ctx)
	}

	payload := map[string]any{}
	for key, value := range data {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}
	if ipAddress := auditcontext.IPAddressFromContext(ctx); ipAddress != "" {
		payload["ip_address"] = ipAddress
	}
	if userAgent := auditcontext.UserAgentFromContext(ctx); userAgent != "" {
		payload["user_agent"] = userAgent
	}
	if actorType, actorID := auditcontext.ActorFromContext(ctx); actorType != "" {
		payload["actor_type"] = actorType
		if actorID != "" {
			payload["actor_id"] = actorID
		}
	}

	event := auditdomain.AuditEvent{
		Ts:            time.Now().UTC(),
		EventType:     eventType,
		Source:        source,
		CorrelationID: correlationID,
		TransactionID: normalizePointer(transactionID),
		Data:          datatypes.JSONMap(payload),
	}

	seq, err := s.repo.Insert(ctx, s.db, &event)
	if err != nil {
		s.log.Warn("failed to append audit event", zap.String("event_type", eventType), zap.Error(err))
		return 0, err
	}
	return seq, nil
}

// QueryAudit returns a cursor-paginated page of audit events (spec.md §4.6).
func (s *Service) QueryAudit(ctx context.Context, req auditdomain.QueryAuditRequest) (auditdomain.QueryAuditResponse, error) {
	var startAt, endAt *time.Time
	if req.StartAt != nil {
		t, err := time.Parse(time.RFC3339, *req.StartAt)
		if err != nil {
			return auditdomain.QueryAuditResponse{}, auditdomain.ErrInvalidTimeRange
		}
		startAt = &t
	}
	if req.EndAt != nil {
		t, err := time.Parse(time.RFC3339, *req.EndAt)
		if err != nil {
			return auditdomain.QueryAuditResponse{}, auditdomain.ErrInvalidTimeRange
		}
		endAt = &t
	}
	if startAt != nil && endAt != nil && startAt.After(*endAt) {
		return auditdomain.QueryAuditResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *auditdomain.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.QueryAuditResponse{}, auditdomain.ErrInvalidPageToken
		}
		ts, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return auditdomain.QueryAuditResponse{}, auditdomain.ErrInvalidPageToken
		}
		seq, err := strconv.ParseInt(strings.TrimSpace(decoded.ID), 10, 64)
		if err != nil {
			return auditdomain.QueryAuditResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.Cursor{Seq: seq, Ts: ts}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		EventType:     req.EventType,
		Source:        req.Source,
		CorrelationID: req.CorrelationID,
		TransactionID: req.TransactionID,
		StartAt:       startAt,
		EndAt:         endAt,
		Cursor:        cursor,
		Limit:         int(pageSize),
	})
	if err != nil {
		return auditdomain.QueryAuditResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *auditdomain.AuditEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        strconv.FormatInt(item.Seq, 10),
			CreatedAt: item.Ts.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	events := make([]auditdomain.AuditEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		events = append(events, *item)
	}

	resp := auditdomain.QueryAuditResponse{Events: events}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
