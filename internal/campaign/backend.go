package campaign

import (
	"context"
	"time"

	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/internal/store"
)

// Batch is a set of claimed enrollment rows. Updates apply only to rows the
// caller touches; rows left alone return to the queue when the batch closes.
type Batch interface {
	MarkSent(ctx context.Context, cc domain.CampaignContact, nextFollowUp *time.Time) error
	MarkFollowUpSent(ctx context.Context, cc domain.CampaignContact, next *time.Time) error
	MarkStatus(ctx context.Context, cc domain.CampaignContact, status domain.ContactStatus, lastError string) error
	MarkCalling(ctx context.Context, cc domain.CampaignContact) error
	Close(ctx context.Context) error
	Abort(ctx context.Context)
}

// Backend is everything the dispatcher needs from persistence.
type Backend interface {
	Running(ctx context.Context) ([]domain.Campaign, error)
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	ClaimPending(ctx context.Context, campaignID string, limit int) (Batch, []domain.CampaignContact, error)
	ClaimFollowUps(ctx context.Context, campaignID string, limit int) (Batch, []domain.CampaignContact, error)
	MarkCompletedIfDone(ctx context.Context, campaignID string) (bool, error)
	UpdateContactStatus(ctx context.Context, campaignID, contactID string, status domain.ContactStatus, lastError string) error
	UpdateStatusByContact(ctx context.Context, contactID string, status domain.ContactStatus) error

	GetOffer(ctx context.Context, id string) (domain.Offer, error)
	GetContact(ctx context.Context, id string) (domain.Contact, error)
	ContactByPhone(ctx context.Context, phone string) (domain.Contact, error)
	MarkFirstContacted(ctx context.Context, contactID string) error
	OptOutContact(ctx context.Context, phone string) error

	ActiveArms(ctx context.Context, agentID string) ([]domain.PromptVersion, error)
	SetArmStatus(ctx context.Context, versionID string, status domain.ArmStatus) error
	CreateAnchor(ctx context.Context, a domain.AnchorMessage) error

	ReserveNumber(ctx context.Context, numbers []string, ladder []int) (string, error)
}

// storeBackend adapts [store.Store] to [Backend].
type storeBackend struct {
	s *store.Store
}

// NewStoreBackend wraps the Postgres store.
func NewStoreBackend(s *store.Store) Backend {
	return storeBackend{s: s}
}

func (b storeBackend) Running(ctx context.Context) ([]domain.Campaign, error) {
	return b.s.Campaigns.Running(ctx)
}

func (b storeBackend) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return b.s.Campaigns.Get(ctx, id)
}

func (b storeBackend) ClaimPending(ctx context.Context, campaignID string, limit int) (Batch, []domain.CampaignContact, error) {
	cb, err := b.s.Campaigns.ClaimPending(ctx, campaignID, limit)
	if err != nil {
		return nil, nil, err
	}
	return cb, cb.Rows, nil
}

func (b storeBackend) ClaimFollowUps(ctx context.Context, campaignID string, limit int) (Batch, []domain.CampaignContact, error) {
	cb, err := b.s.Campaigns.ClaimFollowUps(ctx, campaignID, limit)
	if err != nil {
		return nil, nil, err
	}
	return cb, cb.Rows, nil
}

func (b storeBackend) MarkCompletedIfDone(ctx context.Context, campaignID string) (bool, error) {
	return b.s.Campaigns.MarkCompletedIfDone(ctx, campaignID)
}

func (b storeBackend) UpdateContactStatus(ctx context.Context, campaignID, contactID string, status domain.ContactStatus, lastError string) error {
	return b.s.Campaigns.UpdateContactStatus(ctx, campaignID, contactID, status, lastError)
}

func (b storeBackend) UpdateStatusByContact(ctx context.Context, contactID string, status domain.ContactStatus) error {
	return b.s.Campaigns.UpdateStatusByContact(ctx, contactID, status)
}

func (b storeBackend) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	return b.s.Campaigns.GetOffer(ctx, id)
}

func (b storeBackend) GetContact(ctx context.Context, id string) (domain.Contact, error) {
	return b.s.Contacts.Get(ctx, id)
}

func (b storeBackend) ContactByPhone(ctx context.Context, phone string) (domain.Contact, error) {
	return b.s.Contacts.GetByPhone(ctx, phone)
}

func (b storeBackend) MarkFirstContacted(ctx context.Context, contactID string) error {
	return b.s.Contacts.MarkFirstContacted(ctx, contactID)
}

func (b storeBackend) OptOutContact(ctx context.Context, phone string) error {
	return b.s.Contacts.OptOut(ctx, phone)
}

func (b storeBackend) ActiveArms(ctx context.Context, agentID string) ([]domain.PromptVersion, error) {
	return b.s.Prompts.ActiveArms(ctx, agentID)
}

func (b storeBackend) SetArmStatus(ctx context.Context, versionID string, status domain.ArmStatus) error {
	return b.s.Prompts.SetArmStatus(ctx, versionID, status)
}

func (b storeBackend) CreateAnchor(ctx context.Context, a domain.AnchorMessage) error {
	return b.s.Anchors.Create(ctx, a)
}

func (b storeBackend) ReserveNumber(ctx context.Context, numbers []string, ladder []int) (string, error) {
	return b.s.Numbers.Reserve(ctx, numbers, ladder)
}
