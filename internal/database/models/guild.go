package models

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/database/dbretry"
	"github.com/wardenlabs/warden/internal/database/types"
)

// GuildModel handles database operations for guild rule configuration and
// exemption sets.
type GuildModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewGuild creates a repository with database access for guild configuration.
func NewGuild(db *bun.DB, logger *zap.Logger) *GuildModel {
	return &GuildModel{
		db:     db,
		logger: logger.Named("db_guild"),
	}
}

// GetGuildSettings assembles the full settings snapshot for a guild.
func (r *GuildModel) GetGuildSettings(ctx context.Context, guildID uint64) (*types.GuildSettings, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.GuildSettings, error) {
		var ruleRows []*types.RuleConfig
		err := r.db.NewSelect().Model(&ruleRows).
			Where("guild_id = ?", guildID).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load guild rules: %w", err)
		}

		var exemptionRows []*types.Exemption
		err = r.db.NewSelect().Model(&exemptionRows).
			Where("guild_id = ?", guildID).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load guild exemptions: %w", err)
		}

		settings := &types.GuildSettings{
			GuildID:    guildID,
			Rules:      make(map[types.RuleKind]*types.RuleConfig, len(ruleRows)),
			Exemptions: make(map[types.ExemptionSubsystem]*types.ExemptionSet),
		}

		for _, rule := range ruleRows {
			settings.Rules[rule.Kind] = rule
		}

		for _, row := range exemptionRows {
			set, ok := settings.Exemptions[row.Subsystem]
			if !ok {
				set = types.NewExemptionSet()
				settings.Exemptions[row.Subsystem] = set
			}

			set.Add(row.TargetType, row.TargetID)
		}

		return settings, nil
	})
}

// UpsertRule enables or updates a rule for a guild.
func (r *GuildModel) UpsertRule(ctx context.Context, rule *types.RuleConfig) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		rule.UpdatedAt = time.Now()

		_, err := r.db.NewInsert().Model(rule).
			On("CONFLICT (guild_id, kind) DO UPDATE").
			Set("enabled = EXCLUDED.enabled").
			Set("threshold = EXCLUDED.threshold").
			Set("window_seconds = EXCLUDED.window_seconds").
			Set("mute_seconds = EXCLUDED.mute_seconds").
			Set("words = EXCLUDED.words").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert guild rule: %w", err)
		}

		return nil
	})
}

// DisableRule removes a rule's configuration entirely. Re-enabling writes a
// fresh row, so thresholds never drift across a disable/enable cycle.
func (r *GuildModel) DisableRule(ctx context.Context, guildID uint64, kind types.RuleKind) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewDelete().Model((*types.RuleConfig)(nil)).
			Where("guild_id = ?", guildID).
			Where("kind = ?", kind).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to disable guild rule: %w", err)
		}

		return nil
	})
}

// AddExemption whitelists a target for a subsystem.
func (r *GuildModel) AddExemption(ctx context.Context, exemption *types.Exemption) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewInsert().Model(exemption).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to add guild exemption: %w", err)
		}

		return nil
	})
}

// RemoveExemption drops a whitelist entry.
func (r *GuildModel) RemoveExemption(ctx context.Context, exemption *types.Exemption) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := r.db.NewDelete().Model((*types.Exemption)(nil)).
			Where("guild_id = ?", exemption.GuildID).
			Where("subsystem = ?", exemption.Subsystem).
			Where("target_type = ?", exemption.TargetType).
			Where("target_id = ?", exemption.TargetID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to remove guild exemption: %w", err)
		}

		return nil
	})
}

// ResetGuildConfiguration deletes every rule and exemption row for a guild.
// Invoked when the platform denies an enforcement action.
func (r *GuildModel) ResetGuildConfiguration(ctx context.Context, guildID uint64) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewDelete().Model((*types.RuleConfig)(nil)).
				Where("guild_id = ?", guildID).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete guild rules: %w", err)
			}

			if _, err := tx.NewDelete().Model((*types.Exemption)(nil)).
				Where("guild_id = ?", guildID).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete guild exemptions: %w", err)
			}

			return nil
		})
	})
	if err != nil {
		return err
	}

	r.logger.Warn("Guild filter configuration reset",
		zap.Uint64("guildID", guildID))

	return nil
}
