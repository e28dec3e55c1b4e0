package backend

import (
	"context"
	"fmt"
	"sync"
)

// Simulator is an in-memory backend for development and tests. Instances
// become running after WarmupPolls describe calls and get deterministic
// addresses.
type Simulator struct {
	mu sync.Mutex

	// WarmupPolls is how many Describe calls a fresh instance stays
	// pending for.
	WarmupPolls int

	next        int
	instances   map[string]*simInstance
	attachments map[string]string // instance id -> disk id
}

type simInstance struct {
	Instance
	polls int
}

// NewSimulator creates a simulator whose instances run on the first poll.
func NewSimulator() *Simulator {
	return &Simulator{
		instances:   make(map[string]*simInstance),
		attachments: make(map[string]string),
	}
}

// Run creates spec.Count simulated instances.
func (s *Simulator) Run(_ context.Context, spec InstanceSpec) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		s.next++
		id := fmt.Sprintf("i-sim%04d", s.next)
		s.instances[id] = &simInstance{
			Instance: Instance{
				ID:        id,
				PublicIP:  fmt.Sprintf("203.0.113.%d", s.next),
				PrivateIP: fmt.Sprintf("10.0.0.%d", s.next),
				Status:    StatusPending,
			},
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Describe reports instance states, advancing pending instances toward
// running.
func (s *Simulator) Describe(_ context.Context, ids []string) ([]Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instances := make([]Instance, 0, len(ids))
	for _, id := range ids {
		inst, ok := s.instances[id]
		if !ok {
			return nil, fmt.Errorf("unknown instance: %s", id)
		}
		if inst.Status == StatusPending {
			inst.polls++
			if inst.polls > s.WarmupPolls {
				inst.Status = StatusRunning
			}
		}
		instances = append(instances, inst.Instance)
	}
	return instances, nil
}

// Terminate removes the given instances.
func (s *Simulator) Terminate(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.instances[id]; !ok {
			return fmt.Errorf("unknown instance: %s", id)
		}
		delete(s.instances, id)
		delete(s.attachments, id)
	}
	return nil
}

// AttachDisk records the attachment and returns a fixed device location.
func (s *Simulator) AttachDisk(_ context.Context, diskID, instanceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[instanceID]; !ok {
		return "", fmt.Errorf("unknown instance: %s", instanceID)
	}
	s.attachments[instanceID] = diskID
	return "/dev/sdb", nil
}

// Attached reports the disk attached to an instance, for tests.
func (s *Simulator) Attached(instanceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	disk, ok := s.attachments[instanceID]
	return disk, ok
}
