package service

import (
	"sync"

	"github.com/google/uuid"
)

// companyLocks hands out one mutex per company so bookings for different
// companies never contend with each other.
type companyLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newCompanyLocks() *companyLocks {
	return &companyLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// lock acquires the company's mutex and returns its release func. Lock
// entries are never reclaimed; the set of companies is small and stable.
func (c *companyLocks) lock(companyID uuid.UUID) func() {
	c.mu.Lock()
	m, ok := c.locks[companyID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[companyID] = m
	}
	c.mu.Unlock()

	m.Lock()
	return m.Unlock
}
