// Package dispatch runs send passes: it locks a campaign, snapshots its
// audience into recipient rows and fans the messages out to the transport.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/metrics"
	"github.com/ignite/campaign-engine/internal/personalize"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotFound          = domain.ErrNotFound
	ErrInvalidState      = domain.ErrInvalidState
	ErrNoRecipients      = domain.ErrNoRecipients
	ErrAlreadyInProgress = domain.ErrAlreadyInProgress
)

// Campaigns is the slice of the campaign service a pass needs.
type Campaigns interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	MarkSending(ctx context.Context, id string, from domain.CampaignStatus) error
	MarkSent(ctx context.Context, id string) (time.Time, error)
	Revert(ctx context.Context, id string, to domain.CampaignStatus) error
	Due(ctx context.Context) ([]domain.Campaign, error)
	Interrupted(ctx context.Context) ([]domain.Campaign, error)
	Snapshot(ctx context.Context, id string, contacts []domain.Contact) (int, error)
	RecipientCount(ctx context.Context, id string) (int, error)
	Pending(ctx context.Context, id string) ([]domain.CampaignRecipient, error)
	MarkDelivered(ctx context.Context, id, contactID, messageID string) error
	MarkFailed(ctx context.Context, id, contactID, reason string) error
}

// Audience resolves a campaign's targeting criteria to contacts.
type Audience interface {
	ResolveFull(ctx context.Context, c domain.Criteria) ([]domain.Contact, error)
}

// Suppressions issues unsubscribe tokens and answers opt-out checks.
type Suppressions interface {
	IssueToken(ctx context.Context, contactID string, scope domain.Channel) (string, error)
	IsSuppressed(ctx context.Context, contactID string, channel domain.Channel) (bool, error)
}

// Contacts looks up a single contact.
type Contacts interface {
	Get(ctx context.Context, id string) (*domain.Contact, error)
}

// Renderer personalises a campaign for one contact.
type Renderer interface {
	Validate(c *domain.Campaign) error
	Render(c *domain.Campaign, ct *domain.Contact, unsubscribeToken string) (*personalize.Rendered, error)
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
}

// Options tune a Dispatcher.
type Options struct {
	Workers   int
	LockTTL   time.Duration
	FromName  string
	FromEmail string
	ReplyTo   string
}

// Dispatcher executes dispatch passes. Only one pass per campaign runs at a
// time across all instances sharing the lock backend.
type Dispatcher struct {
	campaigns    Campaigns
	audience     Audience
	suppressions Suppressions
	contacts     Contacts
	renderer     Renderer
	sender       Sender
	locks        distlock.Factory
	opts         Options
	now          func() time.Time
}

// NewDispatcher wires a dispatcher. A nil lock factory falls back to
// in-process locks.
func NewDispatcher(campaigns Campaigns, audience Audience, suppressions Suppressions, contacts Contacts,
	renderer Renderer, sender Sender, locks distlock.Factory, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if locks == nil {
		locks = distlock.NewFactory(nil, nil, opts.LockTTL)
	}
	return &Dispatcher{
		campaigns:    campaigns,
		audience:     audience,
		suppressions: suppressions,
		contacts:     contacts,
		renderer:     renderer,
		sender:       sender,
		locks:        locks,
		opts:         opts,
		now:          time.Now,
	}
}

// SetClock replaces the time source used for due checks.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

func lockKey(campaignID string) string {
	return "campaign-dispatch:" + campaignID
}

// Dispatch runs one pass over a campaign. The pass is not bound to ctx's
// cancellation: once started it records an outcome for every recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID string, trigger domain.DispatchTrigger) (*domain.DispatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()

	lock := d.locks(lockKey(campaignID))
	ok, err := lock.Acquire(ctx)
	if err != nil {
		d.observe(trigger, "error", started)
		return nil, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !ok {
		d.observe(trigger, "locked", started)
		return nil, fmt.Errorf("campaign %s: %w", campaignID, ErrAlreadyInProgress)
	}
	stop := distlock.KeepAlive(ctx, lock, d.opts.LockTTL, func(err error) {
		logger.Warn("dispatch lock lost", "campaign_id", campaignID, "error", err)
	})
	defer func() {
		stop()
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
			logger.Warn("release dispatch lock", "campaign_id", campaignID, "error", err)
		}
	}()

	res, outcome, err := d.run(ctx, campaignID, trigger)
	d.observe(trigger, outcome, started)
	return res, err
}

func (d *Dispatcher) observe(trigger domain.DispatchTrigger, outcome string, started time.Time) {
	metrics.DispatchPasses.WithLabelValues(string(trigger), outcome).Inc()
	if outcome == "sent" || outcome == "cancelled" {
		metrics.DispatchDuration.WithLabelValues(string(trigger)).Observe(time.Since(started).Seconds())
	}
}

// run executes a pass while the lock is held and reports a metrics outcome.
func (d *Dispatcher) run(ctx context.Context, id string, trigger domain.DispatchTrigger) (*domain.DispatchResult, string, error) {
	c, err := d.campaigns.Get(ctx, id)
	if err != nil {
		return nil, "error", err
	}
	if err := d.checkState(c, trigger); err != nil {
		return nil, "invalid_state", err
	}
	if err := d.renderer.Validate(c); err != nil {
		return nil, "invalid_state", err
	}

	res := &domain.DispatchResult{CampaignID: id, Trigger: trigger, StartedAt: d.now().UTC()}

	prior := c.Status
	if trigger == domain.TriggerRecovery {
		prior = domain.CampaignScheduled
		if c.ScheduledAt == nil {
			prior = domain.CampaignDraft
		}
	} else if err := d.campaigns.MarkSending(ctx, id, c.Status); err != nil {
		return nil, "invalid_state", fmt.Errorf("campaign %s cannot be sent: %w", id, err)
	}

	existing := 0
	if trigger == domain.TriggerRecovery {
		if existing, err = d.campaigns.RecipientCount(ctx, id); err != nil {
			return nil, "error", err
		}
	}

	// Pre-resolved contacts keyed by id; empty on resume.
	byID := map[string]*domain.Contact{}
	if existing == 0 {
		contacts, err := d.audience.ResolveFull(ctx, c.TargetAudience)
		if err != nil {
			d.revert(ctx, id, prior)
			return nil, "error", err
		}
		if len(contacts) == 0 {
			d.revert(ctx, id, prior)
			return nil, "no_recipients", fmt.Errorf("campaign %s: %w", id, ErrNoRecipients)
		}

		// A cancel that lands before the snapshot stops the pass.
		cur, err := d.campaigns.Get(ctx, id)
		if err != nil {
			d.revert(ctx, id, prior)
			return nil, "error", err
		}
		if cur.Status != domain.CampaignSending {
			return nil, "invalid_state", fmt.Errorf("campaign %s is %s: %w", id, cur.Status, ErrInvalidState)
		}

		// The snapshot is one statement: on error no rows exist.
		if _, err := d.campaigns.Snapshot(ctx, id, contacts); err != nil {
			d.revert(ctx, id, prior)
			return nil, "error", fmt.Errorf("snapshot recipients: %w", err)
		}
		for i := range contacts {
			byID[contacts[i].ID] = &contacts[i]
		}
	}

	// Rows left PENDING are picked up again by the next pass.
	pending, err := d.campaigns.Pending(ctx, id)
	if err != nil {
		d.revert(ctx, id, prior)
		return nil, "error", fmt.Errorf("load pending recipients: %w", err)
	}
	res.Recipients = len(pending)
	logger.Info("dispatch started", "campaign_id", id, "trigger", string(trigger), "recipients", len(pending))

	var sent, failed int64
	g := new(errgroup.Group)
	g.SetLimit(d.opts.Workers)
	for _, r := range pending {
		r := r
		g.Go(func() error {
			if d.deliver(ctx, c, r, byID[r.ContactID], trigger == domain.TriggerRecovery) {
				atomic.AddInt64(&sent, 1)
			} else {
				atomic.AddInt64(&failed, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Sent = int(sent)
	res.Failed = int(failed)
	res.FinishedAt = d.now().UTC()

	outcome := "sent"
	if _, err := d.campaigns.MarkSent(ctx, id); err != nil {
		if !errors.Is(err, ErrInvalidState) {
			return nil, "error", fmt.Errorf("mark sent: %w", err)
		}
		cur, gerr := d.campaigns.Get(ctx, id)
		if gerr != nil {
			return nil, "error", gerr
		}
		res.Status = cur.Status
		outcome = "cancelled"
		logger.Info("dispatch finished after cancel", "campaign_id", id, "status", string(cur.Status))
	} else {
		res.Status = domain.CampaignSent
	}

	logger.Info("dispatch completed",
		"campaign_id", id,
		"trigger", string(trigger),
		"sent", res.Sent,
		"failed", res.Failed,
		"duration", res.FinishedAt.Sub(res.StartedAt).String(),
	)
	return res, outcome, nil
}

func (d *Dispatcher) checkState(c *domain.Campaign, trigger domain.DispatchTrigger) error {
	switch trigger {
	case domain.TriggerManual:
		if c.Status == domain.CampaignDraft || c.Status == domain.CampaignScheduled {
			return nil
		}
	case domain.TriggerScheduled:
		if c.IsDue(d.now()) {
			return nil
		}
	case domain.TriggerRecovery:
		if c.Status == domain.CampaignSending {
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown trigger %q", ErrInvalidState, trigger)
	}
	return fmt.Errorf("campaign %s cannot be sent in status %s: %w", c.ID, c.Status, ErrInvalidState)
}

func (d *Dispatcher) revert(ctx context.Context, id string, to domain.CampaignStatus) {
	if err := d.campaigns.Revert(ctx, id, to); err != nil {
		logger.Warn("revert after aborted dispatch", "campaign_id", id, "to", string(to), "error", err)
	}
}

// deliver sends to one recipient and records the outcome. It reports
// whether the message was accepted by the transport.
func (d *Dispatcher) deliver(ctx context.Context, c *domain.Campaign, r domain.CampaignRecipient, ct *domain.Contact, resumed bool) bool {
	fail := func(reason string) bool {
		metrics.RecipientOutcomes.WithLabelValues("failed").Inc()
		if err := d.campaigns.MarkFailed(ctx, c.ID, r.ContactID, reason); err != nil {
			logger.Error("record failed recipient", "campaign_id", c.ID, "contact_id", r.ContactID, "error", err)
		}
		return false
	}

	if ct == nil {
		got, err := d.contacts.Get(ctx, r.ContactID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return fail("contact no longer exists")
		case err != nil:
			return fail("load contact: " + err.Error())
		}
		ct = got
	}
	if resumed {
		suppressed, err := d.suppressions.IsSuppressed(ctx, ct.ID, domain.ChannelEmail)
		if err != nil {
			return fail("suppression check: " + err.Error())
		}
		if suppressed {
			return fail("suppressed")
		}
	}

	token, err := d.suppressions.IssueToken(ctx, ct.ID, domain.ChannelEmail)
	if err != nil {
		return fail("unsubscribe token: " + err.Error())
	}
	content, err := d.renderer.Render(c, ct, token)
	if err != nil {
		return fail("render: " + err.Error())
	}

	msg := &domain.EmailMessage{
		CampaignID:  c.ID,
		ContactID:   ct.ID,
		Email:       ct.Email,
		FromName:    firstNonEmpty(c.FromName, d.opts.FromName),
		FromEmail:   firstNonEmpty(c.FromEmail, d.opts.FromEmail),
		ReplyTo:     d.opts.ReplyTo,
		Subject:     content.Subject,
		HTMLContent: content.HTML,
		TextContent: content.Text,
		Headers:     content.Headers,
		Tags:        map[string]string{"campaign_id": c.ID},
	}
	out, err := d.sender.Send(ctx, msg)
	if err != nil {
		logger.Warn("send failed", "campaign_id", c.ID, "contact_id", ct.ID, "email", ct.Email, "error", err)
		return fail(err.Error())
	}

	metrics.RecipientOutcomes.WithLabelValues("sent").Inc()
	if err := d.campaigns.MarkDelivered(ctx, c.ID, ct.ID, out.MessageID); err != nil {
		logger.Error("record sent recipient", "campaign_id", c.ID, "contact_id", ct.ID, "error", err)
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
