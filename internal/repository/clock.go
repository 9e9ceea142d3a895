package repository

import (
	"sync"
	"time"
)

// commitClock выдаёт строго возрастающие метки времени с точностью до микросекунды,
// чтобы порядок операций сохранялся и после записи в PostgreSQL.
type commitClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newCommitClock() *commitClock {
	return &commitClock{now: time.Now}
}

func (c *commitClock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
