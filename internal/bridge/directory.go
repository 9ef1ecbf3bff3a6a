package bridge

import (
	"context"
	"errors"

	"github.com/parlance-ai/parlance/internal/domain"
	"github.com/parlance-ai/parlance/internal/store"
)

// storeDirectory adapts [store.Store] to [Directory].
type storeDirectory struct {
	s *store.Store
}

// NewStoreDirectory wraps the Postgres store.
func NewStoreDirectory(s *store.Store) Directory {
	return storeDirectory{s: s}
}

func (d storeDirectory) Anchor(ctx context.Context, callID string) (domain.AnchorMessage, error) {
	return d.s.Anchors.Get(ctx, callID)
}

func (d storeDirectory) Agent(ctx context.Context, id string) (domain.Agent, error) {
	return d.s.Agents.Get(ctx, id)
}

func (d storeDirectory) PromptVersion(ctx context.Context, id string) (domain.PromptVersion, error) {
	return d.s.Prompts.Get(ctx, id)
}

func (d storeDirectory) Contact(ctx context.Context, id string) (domain.Contact, error) {
	return d.s.Contacts.Get(ctx, id)
}

func (d storeDirectory) CampaignOffer(ctx context.Context, campaignID string) (*domain.Offer, error) {
	c, err := d.s.Campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.OfferID == "" {
		return nil, nil
	}
	offer, err := d.s.Campaigns.GetOffer(ctx, c.OfferID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (d storeDirectory) FinishCall(ctx context.Context, callID string, transcript []domain.TranscriptEntry, outcome domain.CallOutcome) error {
	return d.s.Anchors.Finish(ctx, callID, transcript, outcome)
}

func (d storeDirectory) ApplyOutcome(ctx context.Context, versionID string, outcome domain.CallOutcome) error {
	_, err := d.s.Prompts.ApplyOutcome(ctx, versionID, outcome)
	return err
}
