package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// PostgresLinkStore implements LinkStore for PostgreSQL
type PostgresLinkStore struct {
	db *sql.DB
}

// NewPostgresLinkStore creates a new PostgreSQL message-link store
func NewPostgresLinkStore(config DatabaseConfig) (*PostgresLinkStore, error) {
	// Build connection string
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	// Open database connection
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.MaxLifetime)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Create table if it doesn't exist
	if err := createTableIfNotExists(db); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &PostgresLinkStore{db: db}, nil
}

// createTableIfNotExists creates the message_links table if it doesn't exist
func createTableIfNotExists(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS message_links (
		id SERIAL PRIMARY KEY,
		discord_message_id VARCHAR(32) NOT NULL UNIQUE,
		stoat_message_id VARCHAR(32) NOT NULL UNIQUE,
		discord_channel_id BIGINT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	-- Create indexes for better performance
	CREATE INDEX IF NOT EXISTS idx_message_links_discord ON message_links(discord_message_id);
	CREATE INDEX IF NOT EXISTS idx_message_links_stoat ON message_links(stoat_message_id);
	CREATE INDEX IF NOT EXISTS idx_message_links_created_at ON message_links(created_at);
	`

	_, err := db.Exec(query)
	return err
}

// StoreLink records a Discord<->Stoat message pair
func (p *PostgresLinkStore) StoreLink(ctx context.Context, link Link) error {
	query := `
	INSERT INTO message_links (discord_message_id, stoat_message_id, discord_channel_id, created_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (discord_message_id)
	DO UPDATE SET
		stoat_message_id = EXCLUDED.stoat_message_id,
		discord_channel_id = EXCLUDED.discord_channel_id
	`

	_, err := p.db.ExecContext(ctx, query, link.DiscordMessageID, link.StoatMessageID, link.DiscordChannelID)
	return err
}

// StoatID retrieves the Stoat message ID linked to a Discord message
func (p *PostgresLinkStore) StoatID(ctx context.Context, discordMessageID string) (string, bool, error) {
	query := `
	SELECT stoat_message_id FROM message_links
	WHERE discord_message_id = $1
	`

	var stoatID string
	err := p.db.QueryRowContext(ctx, query, discordMessageID).Scan(&stoatID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return stoatID, true, nil
}

// DiscordID retrieves the Discord message ID linked to a Stoat message
func (p *PostgresLinkStore) DiscordID(ctx context.Context, stoatMessageID string) (string, bool, error) {
	query := `
	SELECT discord_message_id FROM message_links
	WHERE stoat_message_id = $1
	`

	var discordID string
	err := p.db.QueryRowContext(ctx, query, stoatMessageID).Scan(&discordID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return discordID, true, nil
}

// DiscordChannel retrieves the Discord channel a link belongs to,
// keyed by either side's message ID
func (p *PostgresLinkStore) DiscordChannel(ctx context.Context, messageID string) (int64, bool, error) {
	query := `
	SELECT discord_channel_id FROM message_links
	WHERE discord_message_id = $1 OR stoat_message_id = $1
	`

	var channelID int64
	err := p.db.QueryRowContext(ctx, query, messageID).Scan(&channelID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return channelID, true, nil
}

// DeleteLink removes a link, keyed by either side's message ID
func (p *PostgresLinkStore) DeleteLink(ctx context.Context, messageID string) error {
	query := `DELETE FROM message_links WHERE discord_message_id = $1 OR stoat_message_id = $1`
	_, err := p.db.ExecContext(ctx, query, messageID)
	return err
}

// CleanupOldLinks removes links older than the specified duration
func (p *PostgresLinkStore) CleanupOldLinks(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
	DELETE FROM message_links
	WHERE created_at < NOW() - INTERVAL '%d seconds'
	`

	result, err := p.db.ExecContext(ctx, fmt.Sprintf(query, int(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Close closes the database connection
func (p *PostgresLinkStore) Close() error {
	return p.db.Close()
}
