package sequencer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/tracechain/internal/errs"
	"github.com/smallbiznis/tracechain/internal/lock"
	"go.uber.org/zap"
)

const lockKeyPrefix = "sequencer:account:"

// LockKey is the Redis key guarding writes for a signing account.
func LockKey(account string) string {
	return lockKeyPrefix + strings.ToLower(strings.TrimSpace(account))
}

// accountLocks serialises writers per signing account inside the process and,
// when a Locker is configured, across processes.
type accountLocks struct {
	mu     sync.Mutex
	byAcct map[string]*sync.Mutex
	remote *lock.Locker
	ttl    time.Duration
	log    *zap.Logger
}

func newAccountLocks(remote *lock.Locker, ttl time.Duration, log *zap.Logger) *accountLocks {
	return &accountLocks{
		byAcct: make(map[string]*sync.Mutex),
		remote: remote,
		ttl:    ttl,
		log:    log,
	}
}

func (l *accountLocks) local(account string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byAcct[account]
	if !ok {
		m = &sync.Mutex{}
		l.byAcct[account] = m
	}
	return m
}

// lease is a held writer lock for one signing account.
type lease struct {
	locks *accountLocks
	local *sync.Mutex
	key   string
	token string
}

// acquire blocks on the local mutex and then tries the remote lock once.
func (l *accountLocks) acquire(ctx context.Context, account string) (*lease, error) {
	m := l.local(account)
	m.Lock()

	held := &lease{locks: l, local: m}
	if !l.remote.Enabled() {
		return held, nil
	}

	key := LockKey(account)
	token, ok, err := l.remote.TryLock(ctx, key, l.ttl)
	if err != nil {
		m.Unlock()
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	if !ok {
		m.Unlock()
		return nil, errs.ErrSequencerBusy
	}
	held.key, held.token = key, token
	return held, nil
}

// renew resets the remote lock expiry before the next ledger submission. A
// lost lock means another process may already sign with the same nonces.
func (h *lease) renew(ctx context.Context) error {
	if h.token == "" {
		return nil
	}
	ok, err := h.locks.remote.Extend(ctx, h.key, h.token, h.locks.ttl)
	if err != nil {
		h.locks.log.Error("renew writer lock", zap.String("key", h.key), zap.Error(err))
		return errs.ErrSequencerBusy
	}
	if !ok {
		h.locks.log.Error("writer lock lost", zap.String("key", h.key))
		return errs.ErrSequencerBusy
	}
	return nil
}

func (h *lease) release(ctx context.Context) {
	if h.token != "" {
		// the request context may already be done; release must still run
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := h.locks.remote.Release(releaseCtx, h.key, h.token); err != nil {
			h.locks.log.Warn("release writer lock", zap.String("key", h.key), zap.Error(err))
		}
	}
	h.local.Unlock()
}
