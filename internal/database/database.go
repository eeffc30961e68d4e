// Package database provides the bun-backed Postgres client holding guild rule
// configuration and exemption sets. The moderation core only reads from it
// through the config cache; the write path belongs to configuration commands
// and the filter reset hook.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/database/models"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/setup/config"
)

// sonicProvider is a JSON provider that uses Sonic for encoding and decoding.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

// Client defines the methods that a database client must implement.
type Client interface {
	// Guild returns the model holding guild rule and exemption operations.
	Guild() *models.GuildModel
	// Close gracefully shuts down the database connection.
	Close() error
	// DB returns the underlying bun.DB instance.
	DB() *bun.DB
}

// clientImpl represents the concrete implementation of the database client.
type clientImpl struct {
	db     *bun.DB
	logger *zap.Logger
	guild  *models.GuildModel
}

// NewConnection establishes a new database connection and returns a Client.
func NewConnection(ctx context.Context, cfg *config.PostgreSQL, logger *zap.Logger) (Client, error) {
	// Initialize database connection with config values
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("warden"),
	))

	// Set connection pool settings
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Minute)

	bunjson.SetProvider(sonicProvider{})

	db := bun.NewDB(sqldb, pgdialect.New())

	if err := createSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host), zap.Int("port", cfg.Port))

	return &clientImpl{
		db:     db,
		logger: logger.Named("database"),
		guild:  models.NewGuild(db, logger),
	}, nil
}

func (c *clientImpl) Guild() *models.GuildModel { return c.guild }

func (c *clientImpl) DB() *bun.DB { return c.db }

func (c *clientImpl) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

// createSchema ensures the guild configuration tables exist.
func createSchema(ctx context.Context, db *bun.DB) error {
	tables := []any{
		(*types.RuleConfig)(nil),
		(*types.Exemption)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	return nil
}
