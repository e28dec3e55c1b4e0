// Package registry tracks reservations on the agent side, from acceptance
// until the client observes a terminal state.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a reservation id is unknown.
var ErrNotFound = errors.New("reservation not found")

// Reservation is the agent-side record of one provisioning request. The
// three arrays are index-aligned, one entry per machine.
type Reservation struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	PublicIPs   []string  `json:"public_ips,omitempty"`
	PrivateIPs  []string  `json:"private_ips,omitempty"`
	InstanceIDs []string  `json:"instance_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists reservations.
type Store interface {
	Put(ctx context.Context, res *Reservation) error
	Get(ctx context.Context, id string) (*Reservation, error)
	Close() error
}

// MemoryStore keeps reservations in process memory. It is the default for a
// single same-host agent.
type MemoryStore struct {
	mu           sync.RWMutex
	reservations map[string]Reservation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reservations: make(map[string]Reservation)}
}

// Put stores a copy of the reservation.
func (s *MemoryStore) Put(_ context.Context, res *Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *res
	stored.UpdatedAt = time.Now()
	s.reservations[res.ID] = stored
	return nil
}

// Get returns a copy of the reservation.
func (s *MemoryStore) Get(_ context.Context, id string) (*Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &res, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
