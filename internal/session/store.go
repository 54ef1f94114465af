// Package session tracks live sessions and the token registries in redis.
// A session exists as long as its refresh token; every issued jti is
// whitelisted for its lifetime and moves to the blacklist on rotation or
// revocation.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	sessionKeyPrefix   = "session:"
	userSessionsPrefix = "session:user:"
	whitelistPrefix    = "whitelist:"
	blacklistPrefix    = "blacklist:"
)

// Record is the stored state of one session. The jti and expiry pairs track
// the currently valid access and refresh tokens of the session.
type Record struct {
	SessionID        string    `json:"sessionId"`
	UserID           string    `json:"userId"`
	Email            string    `json:"email"`
	IP               string    `json:"ip"`
	UserAgent        string    `json:"userAgent"`
	OS               string    `json:"os"`
	Browser          string    `json:"browser"`
	AccessJTI        string    `json:"jwtAccessId"`
	AccessExpiresAt  time.Time `json:"expAcc"`
	RefreshJTI       string    `json:"jwtRefreshId"`
	RefreshExpiresAt time.Time `json:"expRef"`
}

// Store is the redis-backed session and token registry. Registry writes favor
// availability: sub-operations run concurrently and individual failures are
// logged, not surfaced, so a partial redis outage degrades revocation instead
// of blocking logins.
type Store struct {
	rdb *redis.Client
	log zerolog.Logger
	now func() time.Time
}

// NewStore returns a session store over the given redis client.
func NewStore(rdb *redis.Client, log zerolog.Logger) *Store {
	return &Store{rdb: rdb, log: log, now: time.Now}
}

func sessionKey(sessionID string) string   { return sessionKeyPrefix + sessionID }
func userSessionsKey(userID string) string { return userSessionsPrefix + userID }
func whitelistKey(jti string) string       { return whitelistPrefix + jti }
func blacklistKey(jti string) string       { return blacklistPrefix + jti }

// CreateSession stores the record under its session id, adds the session to
// the user's set and whitelists both current jtis. The record lives as long
// as the refresh token.
func (s *Store) CreateSession(ctx context.Context, rec *Record) {
	ttl := s.remaining(rec.RefreshExpiresAt)
	if ttl <= 0 {
		return
	}
	s.concurrently(ctx, "create session",
		func(ctx context.Context) error { return s.setRecord(ctx, rec, ttl) },
		func(ctx context.Context) error {
			return s.rdb.SAdd(ctx, userSessionsKey(rec.UserID), rec.SessionID).Err()
		},
		func(ctx context.Context) error {
			return s.whitelist(ctx, rec.RefreshJTI, rec.RefreshExpiresAt)
		},
		func(ctx context.Context) error {
			return s.whitelist(ctx, rec.AccessJTI, rec.AccessExpiresAt)
		},
	)
}

// RotateSession replaces the session's token identifiers after a refresh: the
// record is overwritten with the new jtis, the new pair is whitelisted and
// the old pair moves to the blacklist for what remained of its lifetime.
func (s *Store) RotateSession(ctx context.Context, old *Record, accessJTI string, accessExp time.Time, refreshJTI string, refreshExp time.Time) {
	next := *old
	next.AccessJTI = accessJTI
	next.AccessExpiresAt = accessExp
	next.RefreshJTI = refreshJTI
	next.RefreshExpiresAt = refreshExp

	s.concurrently(ctx, "rotate session",
		func(ctx context.Context) error { return s.unwhitelist(ctx, old.RefreshJTI, old.AccessJTI) },
		func(ctx context.Context) error { return s.setRecord(ctx, &next, s.remaining(refreshExp)) },
		func(ctx context.Context) error { return s.whitelist(ctx, refreshJTI, refreshExp) },
		func(ctx context.Context) error { return s.whitelist(ctx, accessJTI, accessExp) },
		func(ctx context.Context) error { return s.blacklist(ctx, old.RefreshJTI, old.RefreshExpiresAt) },
		func(ctx context.Context) error { return s.blacklist(ctx, old.AccessJTI, old.AccessExpiresAt) },
	)
}

// GetSession returns the record for sessionID, or nil when it expired or
// never existed.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &rec, nil
}

// AllSessions returns every live session of the user. Set entries whose
// record already expired are skipped.
func (s *Store) AllSessions(ctx context.Context, userID string) ([]*Record, error) {
	ids, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("fetch sessions for %s: %w", userID, err)
	}
	out := make([]*Record, 0, len(ids))
	for _, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

// RemoveSession deletes the session and revokes its current tokens. When the
// record already expired only the set membership is cleaned up.
func (s *Store) RemoveSession(ctx context.Context, userID, sessionID string) {
	rec, err := s.GetSession(ctx, sessionID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Msg("remove session: load record")
	}
	ops := []func(ctx context.Context) error{
		func(ctx context.Context) error { return s.rdb.Del(ctx, sessionKey(sessionID)).Err() },
		func(ctx context.Context) error {
			return s.rdb.SRem(ctx, userSessionsKey(userID), sessionID).Err()
		},
	}
	if rec != nil {
		ops = append(ops,
			func(ctx context.Context) error { return s.blacklist(ctx, rec.RefreshJTI, rec.RefreshExpiresAt) },
			func(ctx context.Context) error { return s.blacklist(ctx, rec.AccessJTI, rec.AccessExpiresAt) },
			func(ctx context.Context) error { return s.unwhitelist(ctx, rec.RefreshJTI, rec.AccessJTI) },
		)
	}
	s.concurrently(ctx, "remove session", ops...)
}

// RemoveAllSessions revokes the given sessions of the user, or every session
// when none are named. The user's set key is deleted once it drains. Calling
// it for a user with no sessions is a no-op.
func (s *Store) RemoveAllSessions(ctx context.Context, userID string, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		ids, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
		if err != nil {
			return fmt.Errorf("list sessions for %s: %w", userID, err)
		}
		sessionIDs = ids
	}
	for _, id := range sessionIDs {
		s.RemoveSession(ctx, userID, id)
	}
	left, err := s.rdb.SCard(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("count sessions for %s: %w", userID, err)
	}
	if left == 0 {
		if err := s.rdb.Del(ctx, userSessionsKey(userID)).Err(); err != nil {
			return fmt.Errorf("drop session set for %s: %w", userID, err)
		}
	}
	return nil
}

// ValidateSession reports whether the session record exists and the session
// is still a member of the user's set.
func (s *Store) ValidateSession(ctx context.Context, sessionID, userID string) (bool, error) {
	if sessionID == "" || userID == "" {
		return false, nil
	}
	var recordExists, isMember bool
	err := s.parallel(ctx,
		func(ctx context.Context) error {
			n, err := s.rdb.Exists(ctx, sessionKey(sessionID)).Result()
			recordExists = n > 0
			return err
		},
		func(ctx context.Context) error {
			ok, err := s.rdb.SIsMember(ctx, userSessionsKey(userID), sessionID).Result()
			isMember = ok
			return err
		},
	)
	if err != nil {
		return false, err
	}
	return recordExists && isMember, nil
}

// ValidateToken reports whether the jti is currently acceptable: present in
// the whitelist and absent from the blacklist.
func (s *Store) ValidateToken(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	var blacklisted, whitelisted bool
	err := s.parallel(ctx,
		func(ctx context.Context) error {
			n, err := s.rdb.Exists(ctx, blacklistKey(jti)).Result()
			blacklisted = n > 0
			return err
		},
		func(ctx context.Context) error {
			n, err := s.rdb.Exists(ctx, whitelistKey(jti)).Result()
			whitelisted = n > 0
			return err
		},
	)
	if err != nil {
		return false, err
	}
	return !blacklisted && whitelisted, nil
}

func (s *Store) setRecord(ctx context.Context, rec *Record, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(rec.SessionID), raw, ttl).Err()
}

func (s *Store) whitelist(ctx context.Context, jti string, exp time.Time) error {
	ttl := s.remaining(exp)
	if jti == "" || ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, whitelistKey(jti), true, ttl).Err()
}

// blacklist flags the jti for what remains of its original lifetime. An
// already expired token needs no entry.
func (s *Store) blacklist(ctx context.Context, jti string, exp time.Time) error {
	ttl := s.remaining(exp)
	if jti == "" || ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, blacklistKey(jti), true, ttl).Err()
}

func (s *Store) unwhitelist(ctx context.Context, jtis ...string) error {
	keys := make([]string, 0, len(jtis))
	for _, jti := range jtis {
		if jti != "" {
			keys = append(keys, whitelistKey(jti))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *Store) remaining(exp time.Time) time.Duration {
	return exp.Sub(s.now())
}

// concurrently runs the ops in parallel and logs failures without returning
// them.
func (s *Store) concurrently(ctx context.Context, what string, ops ...func(ctx context.Context) error) {
	var wg sync.WaitGroup
	wg.Add(len(ops))
	for _, op := range ops {
		go func(op func(ctx context.Context) error) {
			defer wg.Done()
			if err := op(ctx); err != nil {
				s.log.Error().Err(err).Str("op", what).Msg("session registry write failed")
			}
		}(op)
	}
	wg.Wait()
}

// parallel runs the ops concurrently and returns the first error.
func (s *Store) parallel(ctx context.Context, ops ...func(ctx context.Context) error) error {
	errs := make(chan error, len(ops))
	for _, op := range ops {
		go func(op func(ctx context.Context) error) {
			errs <- op(ctx)
		}(op)
	}
	var first error
	for range ops {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}
