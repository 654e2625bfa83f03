// Package communicator implements the Dispatch contract (spec.md §4.5):
// template rendering, per-recipient rate limiting, and retrying delivery
// over the email/Slack transports.
package communicator

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/smallbiznis/cashapp/internal/communicator/domain"
	"github.com/smallbiznis/cashapp/internal/config"
	"github.com/smallbiznis/cashapp/internal/providers/email"
	"github.com/smallbiznis/cashapp/internal/providers/slack"
	"github.com/smallbiznis/cashapp/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Bucket *ratelimit.TokenBucket
	Email  email.Provider
	Slack  slack.Provider
}

type Service struct {
	log      *zap.Logger
	cfg      config.NotifyConfig
	slackCfg config.SlackConfig
	registry domain.TemplateRegistry
	bucket   *ratelimit.TokenBucket
	email    email.Provider
	slack    slack.Provider
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("communicator"),
		cfg:      p.Config.Notify,
		slackCfg: p.Config.Slack,
		registry: newStaticRegistry(),
		bucket:   p.Bucket,
		email:    p.Email,
		slack:    p.Slack,
	}
}

var _ domain.Service = (*Service)(nil)

// Dispatch renders event.TemplateName against event.Data and hands the
// rendered message to the transport implied by event.Kind, rate limiting
// per recipient and retrying transient delivery failures with exponential
// backoff (spec.md §4.5).
func (s *Service) Dispatch(ctx context.Context, event domain.Event) (domain.DispatchResult, error) {
	if event.Recipient == "" {
		return domain.DispatchResult{}, domain.ErrInvalidRecipient
	}

	tmpl, ok := s.registry.Lookup(event.TemplateName)
	if !ok {
		return domain.DispatchResult{}, domain.ErrTemplateNotFound
	}
	if err := validateRequiredFields(tmpl, event.Data); err != nil {
		return domain.DispatchResult{}, err
	}

	if err := s.checkRateLimit(ctx, event); err != nil {
		return domain.DispatchResult{Status: domain.DeliveryFailed}, err
	}

	subject, body, err := render(tmpl, event.Data)
	if err != nil {
		return domain.DispatchResult{Status: domain.DeliveryFailed}, err
	}

	deliveryID := uuid.NewString()

	if err := s.deliverWithRetry(ctx, event, subject, body); err != nil {
		s.log.Warn("delivery failed after retries",
			zap.String("delivery_id", deliveryID),
			zap.String("template", event.TemplateName),
			zap.Error(err),
		)
		return domain.DispatchResult{DeliveryID: deliveryID, Status: domain.DeliveryFailed}, err
	}

	return domain.DispatchResult{DeliveryID: deliveryID, Status: domain.DeliverySent}, nil
}

func (s *Service) checkRateLimit(ctx context.Context, event domain.Event) error {
	if s.bucket == nil {
		return nil
	}
	rate := s.cfg.RatePerRecipient
	burst := s.cfg.BurstPerRecipient
	if rate <= 0 || burst <= 0 {
		return nil
	}

	result, err := s.bucket.Allow(ctx, s.rateLimitKey(event), rate, burst)
	if err != nil {
		s.log.Warn("rate limiter unavailable, allowing delivery", zap.Error(err))
		return nil
	}
	if !result.Allowed {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *Service) rateLimitKey(event domain.Event) string {
	return "communicator:recipient:" + event.Recipient
}

func (s *Service) deliverWithRetry(ctx context.Context, event domain.Event, subject, body string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	bo := backoff.WithContext(policy, ctx)

	maxRetries := uint64(s.cfg.MaxDeliveryRetries)
	if maxRetries == 0 {
		maxRetries = 3
	}

	return backoff.Retry(func() error {
		return s.deliver(ctx, event, subject, body)
	}, backoff.WithMaxRetries(bo, maxRetries))
}

func (s *Service) deliver(ctx context.Context, event domain.Event, subject, body string) error {
	switch event.Kind {
	case domain.KindInternalAlert:
		return s.slack.PostMessage(ctx, s.slackCfg.DefaultChannel, fmt.Sprintf("*%s*\n%s", subject, body))
	default:
		return s.email.Send(ctx, email.EmailMessage{
			To:       []string{event.Recipient},
			Subject:  subject,
			HTMLBody: body,
		})
	}
}
