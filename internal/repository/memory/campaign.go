package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliskhannn/notify-engine/internal/model"
)

// CampaignStore keeps campaigns in memory.
type CampaignStore struct {
	mu        sync.RWMutex
	campaigns map[uuid.UUID]*model.Campaign
}

func NewCampaignStore() *CampaignStore {
	return &CampaignStore{campaigns: make(map[uuid.UUID]*model.Campaign)}
}

func (s *CampaignStore) CreateCampaign(_ context.Context, c model.Campaign) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.campaigns[c.ID] = &c
	return c.ID, nil
}

func (s *CampaignStore) GetCampaign(_ context.Context, id uuid.UUID) (model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return model.Campaign{}, model.ErrCampaignNotFound
	}

	return *c, nil
}

// ListActiveCampaigns returns campaigns that are not completed yet.
func (s *CampaignStore) ListActiveCampaigns(_ context.Context) ([]model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Campaign
	for _, c := range s.campaigns {
		if c.Status != model.CampaignCompleted {
			out = append(out, *c)
		}
	}

	return out, nil
}

// UpdateCampaign stores the latest stats and status.
func (s *CampaignStore) UpdateCampaign(_ context.Context, id uuid.UUID, status model.CampaignStatus, stats model.CampaignStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return model.ErrCampaignNotFound
	}

	c.Status = status
	c.Stats = stats
	c.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *CampaignStore) DeleteCampaign(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[id]; !ok {
		return model.ErrCampaignNotFound
	}
	delete(s.campaigns, id)

	return nil
}
