// Package redis provides Redis persistence for workflows and execution state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/dagflow/pkg/persistence"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "dagflow"

// Persistence stores JSON documents under <prefix>:workflow:<id> and
// <prefix>:execution:<id>, with a sorted set indexing workflows by creation
// time and a list per execution holding its transitions.
type Persistence struct {
	client *goredis.Client
	logger *slog.Logger
	prefix string

	workflowRepo         *WorkflowRepository
	executionContextRepo *ExecutionContextRepository
}

// NewPersistence connects to the redis:// URL and pings the server.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(client, logger, defaultPrefix), nil
}

// NewPersistenceWithClient uses an existing client and key prefix.
func NewPersistenceWithClient(client *goredis.Client, logger *slog.Logger, prefix string) *Persistence {
	keys := keyspace(prefix)

	return &Persistence{
		client:               client,
		logger:               logger,
		prefix:               prefix,
		workflowRepo:         &WorkflowRepository{client: client, keys: keys},
		executionContextRepo: &ExecutionContextRepository{client: client, keys: keys},
	}
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionContextRepository() persistence.ExecutionContextRepository {
	return p.executionContextRepo
}

type keyspace string

func (k keyspace) workflows() string { return string(k) + ":workflows" }

func (k keyspace) workflow(id uuid.UUID) string { return string(k) + ":workflow:" + id.String() }

func (k keyspace) execution(id uuid.UUID) string { return string(k) + ":execution:" + id.String() }

func (k keyspace) transitions(id uuid.UUID) string {
	return string(k) + ":execution:" + id.String() + ":transitions"
}

func getJSON(ctx context.Context, client *goredis.Client, key string, target any) error {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, target)
}

func isMissing(err error) bool {
	return errors.Is(err, goredis.Nil)
}

var _ persistence.Persistence = (*Persistence)(nil)
