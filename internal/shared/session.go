package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/console/internal/domain"
)

// SessionStore keeps bearer sessions in Redis. Every token is also indexed
// under its account so all of an account's sessions can be revoked at once.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

type sessionPayload struct {
	AccountID string      `json:"account_id"`
	Role      domain.Role `json:"role"`
	CompanyID string      `json:"company_id,omitempty"`
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl}
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Issue creates a fresh session for acct.
func (s *SessionStore) Issue(ctx context.Context, acct domain.Account) (domain.Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: token: %w", err)
	}
	token := id.String()
	data, err := json.Marshal(sessionPayload{AccountID: acct.ID, Role: acct.Role, CompanyID: acct.CompanyID})
	if err != nil {
		return domain.Session{}, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(token), data, s.ttl)
	pipe.SAdd(ctx, accountKey(acct.ID), token)
	pipe.Expire(ctx, accountKey(acct.ID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Session{}, StorageError(fmt.Errorf("session: issue: %w", err))
	}
	return domain.Session{AccountID: acct.ID, Role: acct.Role, CompanyID: acct.CompanyID, Token: token}, nil
}

// Lookup resolves a token. Unknown or expired tokens yield ErrNotAuthenticated.
func (s *SessionStore) Lookup(ctx context.Context, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, ErrNotAuthenticated
	}
	payload, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, ErrNotAuthenticated
		}
		return domain.Session{}, StorageError(fmt.Errorf("session: lookup: %w", err))
	}
	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return domain.Session{}, ErrNotAuthenticated
	}
	return domain.Session{AccountID: stored.AccountID, Role: stored.Role, CompanyID: stored.CompanyID, Token: token}, nil
}

// Revoke deletes a single session. Revoking an unknown token is not an error.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	sess, err := s.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return nil
		}
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(token))
	pipe.SRem(ctx, accountKey(sess.AccountID), token)
	if _, err := pipe.Exec(ctx); err != nil {
		return StorageError(fmt.Errorf("session: revoke: %w", err))
	}
	return nil
}

// RevokeAccount deletes every live session of an account and reports how many
// were removed.
func (s *SessionStore) RevokeAccount(ctx context.Context, accountID string) (int, error) {
	tokens, err := s.client.SMembers(ctx, accountKey(accountID)).Result()
	if err != nil {
		return 0, StorageError(fmt.Errorf("session: list account sessions: %w", err))
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, sessionKey(token))
	}
	keys = append(keys, accountKey(accountID))
	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, StorageError(fmt.Errorf("session: revoke account: %w", err))
	}
	// The index key itself is counted by DEL when present.
	if len(tokens) > 0 {
		removed--
	}
	return int(removed), nil
}

func sessionKey(token string) string {
	return "session:" + token
}

func accountKey(accountID string) string {
	return "account:sessions:" + accountID
}
