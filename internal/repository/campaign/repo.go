package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/notify-engine/internal/model"
)

const (
	insertCampaignQuery = `
		INSERT INTO campaigns (id, template_id, channel, priority, status, total, stats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `

	selectCampaignQuery = `
		SELECT id, template_id, channel, priority, status, total, stats, created_at, updated_at
		FROM campaigns
		WHERE id = $1;
    `

	listActiveCampaignsQuery = `
		SELECT id, template_id, channel, priority, status, total, stats, created_at, updated_at
		FROM campaigns
		WHERE status <> 'completed'
		ORDER BY created_at;
    `

	updateCampaignQuery = `
		UPDATE campaigns
		SET status = $2, stats = $3, updated_at = $4
		WHERE id = $1;
    `

	deleteCampaignQuery = `
		DELETE FROM campaigns
		WHERE id = $1;
    `
)

// Repository stores campaigns in Postgres.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new campaign repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateCampaign inserts c and returns its id.
func (r *Repository) CreateCampaign(ctx context.Context, c model.Campaign) (uuid.UUID, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()

	stats, err := json.Marshal(c.Stats)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode campaign stats: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertCampaignQuery, c.ID, c.TemplateID, c.Channel, c.Priority, c.Status, c.Total, stats, now, now)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	return c.ID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (model.Campaign, error) {
	var (
		c     model.Campaign
		stats []byte
	)

	err := row.Scan(&c.ID, &c.TemplateID, &c.Channel, &c.Priority, &c.Status, &c.Total, &stats, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Campaign{}, err
	}

	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &c.Stats); err != nil {
			return model.Campaign{}, fmt.Errorf("decode campaign stats: %w", err)
		}
	}

	return c, nil
}

// GetCampaign returns a campaign by id.
func (r *Repository) GetCampaign(ctx context.Context, id uuid.UUID) (model.Campaign, error) {
	c, err := scanCampaign(r.db.Master.QueryRowContext(ctx, selectCampaignQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Campaign{}, model.ErrCampaignNotFound
		}

		return model.Campaign{}, fmt.Errorf("failed to get campaign: %w", err)
	}

	return c, nil
}

// ListActiveCampaigns returns campaigns that are not completed yet.
func (r *Repository) ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := r.db.Master.QueryContext(ctx, listActiveCampaignsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}

	return campaigns, rows.Err()
}

// UpdateCampaign stores the latest stats and status.
func (r *Repository) UpdateCampaign(ctx context.Context, id uuid.UUID, status model.CampaignStatus, stats model.CampaignStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode campaign stats: %w", err)
	}

	res, err := r.db.ExecContext(ctx, updateCampaignQuery, id, status, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return model.ErrCampaignNotFound
	}

	return nil
}

// DeleteCampaign removes a campaign whose notifications could not be stored.
func (r *Repository) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, deleteCampaignQuery, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return model.ErrCampaignNotFound
	}

	return nil
}
