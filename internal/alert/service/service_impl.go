package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/corridorlabs/roamsight/internal/alert/domain"
	"github.com/corridorlabs/roamsight/internal/clock"
	"github.com/corridorlabs/roamsight/internal/notify"
	"github.com/corridorlabs/roamsight/pkg/db"
	"github.com/corridorlabs/roamsight/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  alertdomain.Repository
	Sink  notify.Sink
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  alertdomain.Repository
	sink  notify.Sink
}

func New(p Params) alertdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("alert"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		sink:  p.Sink,
	}
}

func (s *Service) Upsert(ctx context.Context, event alertdomain.Event) (alertdomain.UpsertResult, error) {
	if !event.Severity.Valid() {
		return alertdomain.UpsertResult{}, alertdomain.ErrInvalidSeverity
	}

	existing, err := s.repo.GetByFingerprint(ctx, s.db, event.Fingerprint)
	if err != nil && err != alertdomain.ErrNotFound {
		return alertdomain.UpsertResult{}, err
	}

	if existing == nil {
		alert, insertErr := s.insert(ctx, event)
		if insertErr == nil {
			s.emit(ctx, alert, "created")
			return alertdomain.UpsertResult{Alert: *alert, Created: true}, nil
		}
		if !db.IsDuplicateKeyErr(insertErr) {
			return alertdomain.UpsertResult{}, insertErr
		}
		// Lost an insert race; the winner's row takes the update path.
		existing, err = s.repo.GetByFingerprint(ctx, s.db, event.Fingerprint)
		if err != nil {
			return alertdomain.UpsertResult{}, err
		}
	}

	return s.refresh(ctx, existing, event)
}

func (s *Service) insert(ctx context.Context, event alertdomain.Event) (*alertdomain.Alert, error) {
	now := s.clock.Now()
	alert := &alertdomain.Alert{
		ID:              s.genID.Generate(),
		Fingerprint:     event.Fingerprint,
		Type:            event.Type,
		Severity:        event.Severity,
		Status:          alertdomain.StatusOpen,
		Title:           event.Title,
		Message:         event.Message,
		Source:          event.Source,
		ProjectID:       event.ProjectID,
		Partner:         event.Partner,
		Payload:         marshalPayload(event.Payload),
		FirstDetectedAt: now,
		LastDetectedAt:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, alert); err != nil {
		return nil, err
	}
	s.log.Info("alert created",
		zap.String("fingerprint", alert.Fingerprint),
		zap.String("severity", string(alert.Severity)),
	)
	return alert, nil
}

func (s *Service) refresh(ctx context.Context, alert *alertdomain.Alert, event alertdomain.Event) (alertdomain.UpsertResult, error) {
	now := s.clock.Now()
	reopened := alert.Status == alertdomain.StatusResolved

	alert.Severity = event.Severity
	alert.Title = event.Title
	alert.Message = event.Message
	alert.Source = event.Source
	alert.Payload = marshalPayload(event.Payload)
	alert.LastDetectedAt = now
	alert.UpdatedAt = now
	if reopened {
		alert.Status = alertdomain.StatusOpen
		alert.ResolvedAt = nil
		alert.ResolvedBy = nil
	}

	if err := s.repo.Update(ctx, s.db, alert); err != nil {
		return alertdomain.UpsertResult{}, err
	}
	if reopened {
		s.log.Info("alert reopened", zap.String("fingerprint", alert.Fingerprint))
		s.emit(ctx, alert, "reopened")
	}
	return alertdomain.UpsertResult{Alert: *alert, Reopened: reopened}, nil
}

func (s *Service) Resolve(ctx context.Context, id snowflake.ID, resolvedBy string) (*alertdomain.Alert, error) {
	alert, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if alert.Status == alertdomain.StatusResolved {
		return alert, nil
	}

	now := s.clock.Now()
	alert.Status = alertdomain.StatusResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = &resolvedBy
	alert.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, alert); err != nil {
		return nil, err
	}
	s.log.Info("alert resolved",
		zap.String("fingerprint", alert.Fingerprint),
		zap.String("resolved_by", resolvedBy),
	)
	return alert, nil
}

func (s *Service) Reopen(ctx context.Context, id snowflake.ID) (*alertdomain.Alert, error) {
	alert, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if alert.Status == alertdomain.StatusOpen {
		return alert, nil
	}

	now := s.clock.Now()
	alert.Status = alertdomain.StatusOpen
	alert.ResolvedAt = nil
	alert.ResolvedBy = nil
	alert.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, alert); err != nil {
		return nil, err
	}
	s.log.Info("alert reopened", zap.String("fingerprint", alert.Fingerprint))
	s.emit(ctx, alert, "reopened")
	return alert, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*alertdomain.Alert, error) {
	return s.repo.GetByID(ctx, s.db, id)
}

func (s *Service) List(ctx context.Context, filter alertdomain.ListFilter, page pagination.Pagination) ([]alertdomain.Alert, pagination.PageInfo, error) {
	page = page.Normalize()
	alerts, total, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return alerts, pagination.BuildPageInfo(total, page), nil
}

// emit hands a state transition to the notification sink. Delivery failures
// become their own alert instead of being retried inline.
func (s *Service) emit(ctx context.Context, alert *alertdomain.Alert, transition string) {
	n := notify.Notification{
		Type:    alert.Type,
		Channel: notify.ChannelInApp,
		Message: alert.Title,
		Metadata: map[string]string{
			"fingerprint": alert.Fingerprint,
			"severity":    string(alert.Severity),
			"transition":  transition,
		},
	}
	err := s.sink.Publish(ctx, n)
	if err == nil {
		return
	}
	s.log.Warn("notification publish failed",
		zap.String("fingerprint", alert.Fingerprint),
		zap.Error(err),
	)
	if alert.Type == alertdomain.TypeNotificationFailure {
		// Never notify about failed failure notifications.
		return
	}
	s.recordDeliveryFailure(ctx, n, err)
}

func (s *Service) recordDeliveryFailure(ctx context.Context, n notify.Notification, cause error) {
	day := s.clock.Now().Format(time.DateOnly)
	event := alertdomain.Event{
		Fingerprint: alertdomain.Fingerprint(alertdomain.TypeNotificationFailure, map[string]string{
			"channel": string(n.Channel),
			"type":    n.Type,
			"day":     day,
		}),
		Type:     alertdomain.TypeNotificationFailure,
		Severity: alertdomain.SeverityLow,
		Title:    "Notification delivery failed",
		Message:  "A notification could not be handed off to the delivery sink: " + cause.Error(),
		Source:   "notify",
		Payload: map[string]any{
			"channel":       string(n.Channel),
			"original_type": n.Type,
			"error":         cause.Error(),
		},
	}
	if _, err := s.Upsert(ctx, event); err != nil {
		s.log.Error("failed to record notification failure", zap.Error(err))
	}
}

func marshalPayload(payload map[string]any) []byte {
	if len(payload) == 0 {
		return []byte("{}")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
