package redis

import (
	"fmt"
	"sync"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/setup/config"
)

const (
	// CounterDBIndex stores the shared sliding-window counters in database 0
	// so enforcement state can be inspected independently of other data.
	CounterDBIndex = 0
)

// Manager maintains a thread-safe mapping of database indices to Redis clients.
// Each database index gets its own dedicated connection pool through rueidis.
type Manager struct {
	clients map[int]rueidis.Client
	config  *config.Redis
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewManager initializes the Redis connection manager with an empty client
// pool. Actual client connections are created lazily when first requested.
func NewManager(config *config.Redis, logger *zap.Logger) *Manager {
	return &Manager{
		clients: make(map[int]rueidis.Client),
		config:  config,
		logger:  logger.Named("redis"),
	}
}

// GetClient retrieves or creates a Redis client for the specified database
// index.
func (m *Manager) GetClient(dbIndex int) (rueidis.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[dbIndex]; exists {
		return client, nil
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)},
		Username:    m.config.Username,
		Password:    m.config.Password,
		SelectDB:    dbIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client for db %d: %w", dbIndex, err)
	}

	m.logger.Debug("Created Redis client", zap.Int("dbIndex", dbIndex))
	m.clients[dbIndex] = client

	return client, nil
}

// Close gracefully shuts down all Redis connections.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for dbIndex, client := range m.clients {
		client.Close()
		delete(m.clients, dbIndex)
	}

	m.logger.Info("Closed all Redis connections")
}
