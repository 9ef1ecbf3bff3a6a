// Package campaign runs outbound SMS and voice outreach: claiming enrolled
// contacts, pacing sends, rotating warm-up-limited numbers, scheduling
// follow-ups, classifying replies, and falling back to SMS when a voice call
// goes unanswered.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/parlance-ai/parlance/internal/bandit"
	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/internal/observe"
	"github.com/parlance-ai/parlance/internal/prompt"
	"github.com/parlance-ai/parlance/internal/store"
	"github.com/parlance-ai/parlance/pkg/sms"
	"github.com/parlance-ai/parlance/pkg/telephony"
)

// Defaults.
const (
	DefaultPollInterval = time.Second
	DefaultClaimLimit   = 10
)

// Messenger sends SMS. *sms.Client satisfies it.
type Messenger interface {
	Send(ctx context.Context, from, to, body, webhookURL string) (*sms.Message, error)
}

// Dialer originates calls. *telephony.Client satisfies it.
type Dialer interface {
	Dial(ctx context.Context, req telephony.DialRequest) (string, error)
}

// Config assembles a dispatcher.
type Config struct {
	Backend   Backend
	Messenger Messenger
	Dialer    Dialer

	// OptOuts is optional; without it only the database flag guards sends.
	OptOuts *OptOutCache

	// Classifier handles inbound replies. Required for HandleReply.
	Classifier *Classifier

	// Bandit picks prompt versions for outbound voice calls.
	Bandit *bandit.Selector

	// WebhookBaseURL is the public prefix carrier callbacks are rooted at.
	WebhookBaseURL string

	PollInterval time.Duration
	ClaimLimit   int

	// WarmupLadder overrides the per-number daily caps. Nil uses the store
	// default.
	WarmupLadder []int

	Metrics *observe.Metrics
}

// Dispatcher drives all running campaigns from a single polling loop.
type Dispatcher struct {
	cfg     Config
	metrics *observe.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// runningGauge mirrors the last observed running-campaign count so the
	// up-down counter can be adjusted by deltas.
	runningGauge int
}

// New validates required fields and builds a dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Backend == nil {
		return nil, errors.New("campaign: Backend is required")
	}
	if cfg.Messenger == nil {
		return nil, errors.New("campaign: Messenger is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = DefaultClaimLimit
	}
	if cfg.Bandit == nil {
		cfg.Bandit = bandit.New(bandit.Config{})
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Dispatcher{
		cfg:      cfg,
		metrics:  cfg.Metrics,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// Run polls until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick processes every running campaign once.
func (d *Dispatcher) Tick(ctx context.Context) {
	campaigns, err := d.cfg.Backend.Running(ctx)
	if err != nil {
		slog.Error("campaign poll failed", "error", err)
		return
	}

	if delta := len(campaigns) - d.runningGauge; delta != 0 {
		d.metrics.RunningCampaigns.Add(ctx, int64(delta))
		d.runningGauge = len(campaigns)
	}

	for _, c := range campaigns {
		if c.SendingHours != nil && !c.SendingHours.Contains(time.Now()) {
			continue
		}
		d.processCampaign(ctx, c)
	}
}

// limiterFor returns the campaign's token bucket: one send per
// minute/MessagesPerMinute, burst 1.
func (d *Dispatcher) limiterFor(c domain.Campaign) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	lim, ok := d.limiters[c.ID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(c.MessagesPerMinute)), 1)
		d.limiters[c.ID] = lim
	}
	return lim
}

func (d *Dispatcher) processCampaign(ctx context.Context, c domain.Campaign) {
	lim := d.limiterFor(c)
	offer := d.loadOffer(ctx, c)

	d.processBatch(ctx, c, lim, offer, false)
	d.processBatch(ctx, c, lim, offer, true)

	done, err := d.cfg.Backend.MarkCompletedIfDone(ctx, c.ID)
	if err != nil {
		slog.Error("campaign completion check failed", "campaign", c.ID, "error", err)
		return
	}
	if done {
		slog.Info("campaign completed", "campaign", c.ID)
		d.forgetLimiter(c.ID)
	}
}

func (d *Dispatcher) forgetLimiter(id string) {
	d.mu.Lock()
	delete(d.limiters, id)
	d.mu.Unlock()
}

func (d *Dispatcher) loadOffer(ctx context.Context, c domain.Campaign) *domain.Offer {
	if c.OfferID == "" {
		return nil
	}
	offer, err := d.cfg.Backend.GetOffer(ctx, c.OfferID)
	if err != nil {
		slog.Warn("campaign offer unavailable", "campaign", c.ID, "offer", c.OfferID, "error", err)
		return nil
	}
	return &offer
}

// processBatch claims rows and sends until the rate limiter runs dry. Rows
// claimed but not reached stay untouched and return to the queue on commit.
func (d *Dispatcher) processBatch(ctx context.Context, c domain.Campaign, lim *rate.Limiter, offer *domain.Offer, followUp bool) {
	claim := d.cfg.Backend.ClaimPending
	if followUp {
		claim = d.cfg.Backend.ClaimFollowUps
	}
	batch, rows, err := claim(ctx, c.ID, d.cfg.ClaimLimit)
	if err != nil {
		slog.Error("campaign claim failed", "campaign", c.ID, "follow_up", followUp, "error", err)
		return
	}
	defer func() {
		if err := batch.Close(ctx); err != nil {
			slog.Error("campaign batch commit failed", "campaign", c.ID, "error", err)
		}
	}()

	for _, row := range rows {
		if !lim.Allow() {
			return
		}
		if d.optedOut(ctx, row.Contact.Phone) {
			if err := batch.MarkStatus(ctx, row, domain.ContactOptedOut, ""); err != nil {
				slog.Error("campaign status update failed", "campaign", c.ID, "contact", row.ContactID, "error", err)
			}
			continue
		}

		if followUp {
			err = d.sendFollowUp(ctx, batch, c, row, offer)
		} else if c.Type == domain.CampaignVoiceSMSFallback {
			err = d.placeCall(ctx, batch, c, row)
		} else {
			err = d.sendInitial(ctx, batch, c, row, offer)
		}
		if errors.Is(err, store.ErrNoNumberAvailable) {
			slog.Warn("sending pool exhausted for today", "campaign", c.ID)
			return
		}
		if err != nil {
			slog.Error("campaign send failed", "campaign", c.ID, "contact", row.ContactID, "error", err)
			if err := batch.MarkStatus(ctx, row, domain.ContactFailed, err.Error()); err != nil {
				slog.Error("campaign status update failed", "campaign", c.ID, "contact", row.ContactID, "error", err)
			}
		}
	}
}

func (d *Dispatcher) optedOut(ctx context.Context, phone string) bool {
	if d.cfg.OptOuts == nil {
		return false
	}
	ok, err := d.cfg.OptOuts.Contains(ctx, phone)
	if err != nil {
		// The claim queries already exclude the database flag.
		slog.Warn("opt-out cache unavailable", "error", err)
		return false
	}
	return ok
}

func (d *Dispatcher) sendInitial(ctx context.Context, batch Batch, c domain.Campaign, row domain.CampaignContact, offer *domain.Offer) error {
	from, err := d.cfg.Backend.ReserveNumber(ctx, c.FromNumbers, d.cfg.WarmupLadder)
	if err != nil {
		return err
	}

	body := prompt.RenderTemplate(c.InitialMessageTemplate, row.Contact, offer)
	if _, err := d.cfg.Messenger.Send(ctx, from, row.Contact.Phone, body, d.smsWebhookURL()); err != nil {
		d.metrics.RecordCampaignSend(ctx, "sms", "error")
		return err
	}
	d.metrics.RecordCampaignSend(ctx, "sms", "ok")

	if err := batch.MarkSent(ctx, row, d.nextFollowUp(c, 0)); err != nil {
		return err
	}
	if err := d.cfg.Backend.MarkFirstContacted(ctx, row.ContactID); err != nil {
		slog.Warn("first-contact stamp failed", "contact", row.ContactID, "error", err)
	}
	return nil
}

func (d *Dispatcher) sendFollowUp(ctx context.Context, batch Batch, c domain.Campaign, row domain.CampaignContact, offer *domain.Offer) error {
	from, err := d.cfg.Backend.ReserveNumber(ctx, c.FromNumbers, d.cfg.WarmupLadder)
	if err != nil {
		return err
	}

	template := c.FollowUpTemplate
	if template == "" {
		template = c.InitialMessageTemplate
	}
	body := prompt.RenderTemplate(template, row.Contact, offer)
	if _, err := d.cfg.Messenger.Send(ctx, from, row.Contact.Phone, body, d.smsWebhookURL()); err != nil {
		d.metrics.RecordCampaignSend(ctx, "sms", "error")
		return err
	}
	d.metrics.RecordCampaignSend(ctx, "sms", "ok")

	return batch.MarkFollowUpSent(ctx, row, d.nextFollowUp(c, row.FollowUpsSent+1))
}

// nextFollowUp schedules the next touch, or nil once the chain is exhausted.
func (d *Dispatcher) nextFollowUp(c domain.Campaign, sent int) *time.Time {
	if sent >= c.MaxFollowUps {
		return nil
	}
	t := time.Now().Add(time.Duration(c.FollowUpDelayHours) * time.Hour)
	return &t
}

// placeCall dials a voice-campaign contact. The anchor row is written before
// the dial so the media bridge can find the business context the moment the
// carrier opens the stream.
func (d *Dispatcher) placeCall(ctx context.Context, batch Batch, c domain.Campaign, row domain.CampaignContact) error {
	if d.cfg.Dialer == nil {
		return errors.New("campaign: voice campaign without a dialer")
	}
	from, err := d.cfg.Backend.ReserveNumber(ctx, c.FromNumbers, d.cfg.WarmupLadder)
	if err != nil {
		return err
	}

	versionID, err := d.pickPromptVersion(ctx, c.AgentID)
	if err != nil {
		return err
	}

	callID, err := d.cfg.Dialer.Dial(ctx, telephony.DialRequest{
		To:         row.Contact.Phone,
		From:       from,
		WebhookURL: d.cfg.WebhookBaseURL + "/webhooks/telephony",
		EnableAMD:  true,
	})
	if err != nil {
		d.metrics.RecordCampaignSend(ctx, "call", "error")
		return err
	}

	anchor := domain.AnchorMessage{
		CallID:          callID,
		AgentID:         c.AgentID,
		ContactID:       row.ContactID,
		CampaignID:      c.ID,
		Direction:       domain.DirectionOutbound,
		PromptVersionID: versionID,
	}
	if err := d.cfg.Backend.CreateAnchor(ctx, anchor); err != nil {
		return fmt.Errorf("campaign: anchor for %s: %w", callID, err)
	}
	d.metrics.RecordCampaignSend(ctx, "call", "ok")

	if err := batch.MarkCalling(ctx, row); err != nil {
		return err
	}
	if err := d.cfg.Backend.MarkFirstContacted(ctx, row.ContactID); err != nil {
		slog.Warn("first-contact stamp failed", "contact", row.ContactID, "error", err)
	}
	return nil
}

// pickPromptVersion Thompson-samples the agent's active arms. Agents without
// versions run on their base prompt.
func (d *Dispatcher) pickPromptVersion(ctx context.Context, agentID string) (string, error) {
	versions, err := d.cfg.Backend.ActiveArms(ctx, agentID)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", nil
	}
	arms := make([]bandit.Arm, len(versions))
	for i, v := range versions {
		arms[i] = bandit.Arm{ID: v.ID, Alpha: v.Alpha, Beta: v.Beta, Samples: v.RewardCount}
	}
	d.mu.Lock()
	arm, err := d.cfg.Bandit.Select(arms)
	d.mu.Unlock()
	if err != nil {
		return "", err
	}
	return arm.ID, nil
}

func (d *Dispatcher) smsWebhookURL() string {
	return d.cfg.WebhookBaseURL + "/webhooks/sms"
}

// HandleReply processes an inbound SMS from a contact: opt-outs are honored
// immediately, interest marks the enrollment qualified, and everything else
// marks it replied.
func (d *Dispatcher) HandleReply(ctx context.Context, from, body string) error {
	intent := IntentNeutral
	if d.cfg.Classifier != nil {
		intent = d.cfg.Classifier.Classify(ctx, body)
	}

	if intent == IntentOptOut {
		if err := d.cfg.Backend.OptOutContact(ctx, from); err != nil {
			return err
		}
		if d.cfg.OptOuts != nil {
			if err := d.cfg.OptOuts.Add(ctx, from); err != nil {
				slog.Warn("opt-out cache add failed", "error", err)
			}
		}
		slog.Info("contact opted out", "phone", from)
		return nil
	}

	contact, err := d.cfg.Backend.ContactByPhone(ctx, from)
	if err != nil {
		return fmt.Errorf("campaign: reply from unknown number: %w", err)
	}

	status := domain.ContactReplied
	if intent == IntentInterested {
		status = domain.ContactQualified
	}
	return d.cfg.Backend.UpdateStatusByContact(ctx, contact.ID, status)
}

// HandleCallOutcome resolves a voice-campaign contact after its call ends.
// Unanswered calls fall back to SMS when the campaign allows it. The call's
// outcome has already been folded into the prompt version's counters, so this
// is also where the experiment is re-evaluated.
func (d *Dispatcher) HandleCallOutcome(ctx context.Context, anchor domain.AnchorMessage, outcome domain.CallOutcome) error {
	if anchor.PromptVersionID != "" {
		d.evaluateExperiment(ctx, anchor.AgentID)
	}
	if anchor.CampaignID == "" {
		return nil
	}
	c, err := d.cfg.Backend.GetCampaign(ctx, anchor.CampaignID)
	if err != nil {
		return err
	}

	switch {
	case outcome.Success():
		return d.cfg.Backend.UpdateContactStatus(ctx, anchor.CampaignID, anchor.ContactID, domain.ContactCompleted, "")
	case outcome.FallbackEligible() && c.SMSFallback:
		return d.sendFallbackSMS(ctx, c, anchor)
	default:
		return d.cfg.Backend.UpdateContactStatus(ctx, anchor.CampaignID, anchor.ContactID, domain.ContactCallFailed, string(outcome))
	}
}

// evaluateExperiment runs winner detection and elimination over the agent's
// active arms and persists status changes. A declared winner retires every
// other arm; short of that, arms almost surely behind the leader are retired
// individually. Elimination is terminal, so future selection and evaluation
// never see a retired arm again.
func (d *Dispatcher) evaluateExperiment(ctx context.Context, agentID string) {
	versions, err := d.cfg.Backend.ActiveArms(ctx, agentID)
	if err != nil {
		slog.Error("experiment evaluation failed", "agent", agentID, "error", err)
		return
	}
	if len(versions) < 2 {
		return
	}
	arms := make([]bandit.Arm, len(versions))
	for i, v := range versions {
		arms[i] = bandit.Arm{ID: v.ID, Alpha: v.Alpha, Beta: v.Beta, Samples: v.RewardCount}
	}

	d.mu.Lock()
	winner, decided := d.cfg.Bandit.Winner(arms)
	var retire []string
	if decided {
		for _, a := range arms {
			if a.ID != winner {
				retire = append(retire, a.ID)
			}
		}
	} else {
		retire = d.cfg.Bandit.Eliminable(arms)
	}
	d.mu.Unlock()

	if decided {
		for _, v := range versions {
			d.mu.Lock()
			lo, hi := d.cfg.Bandit.CredibleInterval(v.Alpha, v.Beta)
			d.mu.Unlock()
			slog.Info("prompt experiment decided",
				"agent", agentID,
				"version", v.ID,
				"winner", v.ID == winner,
				"ci_low", lo,
				"ci_high", hi)
		}
	}
	for _, id := range retire {
		if err := d.cfg.Backend.SetArmStatus(ctx, id, domain.ArmEliminated); err != nil {
			slog.Error("arm elimination failed", "agent", agentID, "version", id, "error", err)
		}
	}
}

func (d *Dispatcher) sendFallbackSMS(ctx context.Context, c domain.Campaign, anchor domain.AnchorMessage) error {
	contact, err := d.cfg.Backend.GetContact(ctx, anchor.ContactID)
	if err != nil {
		return err
	}
	if d.optedOut(ctx, contact.Phone) || contact.OptedOut {
		return d.cfg.Backend.UpdateContactStatus(ctx, c.ID, anchor.ContactID, domain.ContactOptedOut, "")
	}

	from, err := d.cfg.Backend.ReserveNumber(ctx, c.FromNumbers, d.cfg.WarmupLadder)
	if err != nil {
		return err
	}
	body := prompt.RenderTemplate(c.InitialMessageTemplate, contact, d.loadOffer(ctx, c))
	if _, err := d.cfg.Messenger.Send(ctx, from, contact.Phone, body, d.smsWebhookURL()); err != nil {
		d.metrics.RecordCampaignSend(ctx, "sms_fallback", "error")
		return err
	}
	d.metrics.RecordCampaignSend(ctx, "sms_fallback", "ok")
	return d.cfg.Backend.UpdateContactStatus(ctx, c.ID, anchor.ContactID, domain.ContactSMSFallback, "")
}
