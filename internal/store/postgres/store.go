package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dirgate/dirgate/internal/domain"
)

type Store struct {
	pool        *pgxpool.Pool
	audit       *AuditRepo
	credentials *CredentialRepo
	keys        *KeyRepo
	mirror      *MirrorRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		audit:       NewAuditRepo(pool),
		credentials: NewCredentialRepo(pool),
		keys:        NewKeyRepo(pool),
		mirror:      NewMirrorRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Audit() domain.AuditRepository            { return s.audit }
func (s *Store) Credentials() domain.CredentialRepository { return s.credentials }
func (s *Store) Keys() domain.KeyRepository               { return s.keys }
func (s *Store) Mirror() domain.MirrorRepository          { return s.mirror }
