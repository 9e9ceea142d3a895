package repository

import (
	"context"
	"slices"
	"sync"
)

// userLocks сериализует изменяющие операции по идентификатору пользователя.
// Операции над разными пользователями друг друга не блокируют.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// acquire захватывает блокировки всех пользователей в лексикографическом порядке.
// Ожидание прерывается отменой контекста; в этом случае ни одна блокировка не удерживается.
func (l *userLocks) acquire(ctx context.Context, userIDs ...string) (func(), error) {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]string, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, id := range ids {
		if err := l.lock(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}

	return release, nil
}

func (l *userLocks) lock(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{sem: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(userID, ul)
		return ctx.Err()
	}
}

func (l *userLocks) unlock(userID string) {
	l.mu.Lock()
	ul := l.locks[userID]
	l.mu.Unlock()

	<-ul.sem
	l.release(userID, ul)
}

func (l *userLocks) release(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

// size возвращает количество пользователей, для которых сейчас есть запись блокировки.
func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
