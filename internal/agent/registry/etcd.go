package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const reservationPrefix = "/reservations/"

// EtcdStore persists reservations in etcd so they survive an agent restart.
type EtcdStore struct {
	client *clientv3.Client
}

// NewEtcdStore connects to etcd at the given endpoints.
func NewEtcdStore(endpoints []string) (*EtcdStore, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &EtcdStore{client: cli}, nil
}

// Put stores the reservation as JSON under its id.
func (s *EtcdStore) Put(ctx context.Context, res *Reservation) error {
	res.UpdatedAt = time.Now()

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal reservation: %w", err)
	}
	if _, err := s.client.Put(ctx, reservationPrefix+res.ID, string(data)); err != nil {
		return fmt.Errorf("failed to save reservation to etcd: %w", err)
	}
	return nil
}

// Get retrieves a reservation by id.
func (s *EtcdStore) Get(ctx context.Context, id string) (*Reservation, error) {
	resp, err := s.client.Get(ctx, reservationPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}

	var res Reservation
	if err := json.Unmarshal(resp.Kvs[0].Value, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reservation: %w", err)
	}
	return &res, nil
}

// Close closes the etcd client connection.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}
