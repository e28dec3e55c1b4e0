// Package agent implements the same-host infrastructure-management service:
// it accepts the four wire operations over TLS, provisions machines
// asynchronously on a cloud backend, and answers describe polls from a
// reservation registry.
package agent

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vmbroker/internal/agent/backend"
	"vmbroker/internal/agent/registry"
	"vmbroker/internal/wire"
)

const (
	// backendPollInterval is the pause between backend describe calls
	// while machines come up.
	backendPollInterval = 5 * time.Second
	// maxBackendPolls bounds how long a provisioning job waits for the
	// provider before marking the reservation failed.
	maxBackendPolls = 120
)

// Config holds the agent's runtime settings.
type Config struct {
	// ListenAddr defaults to ":17444".
	ListenAddr string
	// Secret authenticates every request.
	Secret string
	// CertFile/KeyFile configure TLS; when empty a self-signed
	// certificate is generated at startup.
	CertFile string
	KeyFile  string
	// PoolSize caps concurrent provisioning jobs.
	PoolSize int
}

// Agent serves the wire protocol in front of one backend.
type Agent struct {
	cfg     Config
	store   registry.Store
	backend backend.Backend
	pool    pond.Pool
	log     *zap.Logger

	pollInterval time.Duration
	maxPolls     int
}

// New creates an agent. PoolSize zero falls back to 5.
func New(cfg Config, store registry.Store, be backend.Backend, log *zap.Logger) *Agent {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%d", wire.DefaultPort)
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 5
	}
	return &Agent{
		cfg:          cfg,
		store:        store,
		backend:      be,
		pool:         pond.NewPool(cfg.PoolSize),
		log:          log,
		pollInterval: backendPollInterval,
		maxPolls:     maxBackendPolls,
	}
}

// Handler returns the HTTP handler serving the four operations. Exposed
// separately from ListenAndServe so tests can mount it on their own server.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /"+wire.MethodRunInstances, a.handle(a.runInstances))
	mux.HandleFunc("POST /"+wire.MethodDescribeInstances, a.handle(a.describeInstances))
	mux.HandleFunc("POST /"+wire.MethodTerminateInstances, a.handle(a.terminateInstances))
	mux.HandleFunc("POST /"+wire.MethodAttachDisk, a.handle(a.attachDisk))
	return mux
}

// ListenAndServe serves TLS until ctx is done.
func (a *Agent) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:    a.cfg.ListenAddr,
		Handler: a.Handler(),
	}

	if a.cfg.CertFile == "" || a.cfg.KeyFile == "" {
		cert, err := selfSignedCertificate()
		if err != nil {
			return err
		}
		server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		a.log.Info("using self-signed certificate")
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("agent listening", zap.String("addr", a.cfg.ListenAddr))
		errCh <- server.ListenAndServeTLS(a.cfg.CertFile, a.cfg.KeyFile)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		a.pool.StopAndWait()
		return nil
	case err := <-errCh:
		return err
	}
}

type operation func(ctx context.Context, params map[string]any) (any, error)

// handle decodes the request envelope, checks the shared secret and encodes
// the operation result.
func (a *Agent) handle(op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req wire.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request", http.StatusBadRequest)
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(a.cfg.Secret)) != 1 {
			a.log.Warn("rejected request with bad secret",
				zap.String("path", r.URL.Path),
				zap.String("request_id", r.Header.Get("X-Request-Id")))
			http.Error(w, "invalid secret", http.StatusUnauthorized)
			return
		}

		result, err := op(r.Context(), req.Parameters)
		if err != nil {
			a.log.Error("operation failed",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			a.log.Error("failed to encode response", zap.Error(err))
		}
	}
}

// runInstances accepts the reservation, records it pending and provisions in
// the background. The response returns immediately with the handle the
// client polls on.
func (a *Agent) runInstances(ctx context.Context, params map[string]any) (any, error) {
	count := intParam(params, "num_vms")
	if count <= 0 {
		return wire.RunInstancesResponse{Success: false, Reason: "num_vms must be positive"}, nil
	}

	spec := backend.SpecFromParameters(params)
	spec.Count = count

	reservationID := uuid.NewString()
	res := &registry.Reservation{
		ID:        reservationID,
		State:     wire.StatePending,
		CreatedAt: time.Now(),
	}
	if err := a.store.Put(ctx, res); err != nil {
		return nil, err
	}

	a.pool.Submit(func() {
		a.provision(context.Background(), reservationID, spec)
	})

	a.log.Info("reservation accepted",
		zap.String("reservation_id", reservationID),
		zap.Int("num_vms", count))
	return wire.RunInstancesResponse{Success: true, ReservationID: reservationID}, nil
}

// provision drives one reservation to a terminal state.
func (a *Agent) provision(ctx context.Context, reservationID string, spec backend.InstanceSpec) {
	ids, err := a.backend.Run(ctx, spec)
	if err != nil {
		a.markFailed(ctx, reservationID, err.Error())
		return
	}

	for attempt := 0; attempt < a.maxPolls; attempt++ {
		instances, err := a.backend.Describe(ctx, ids)
		if err != nil {
			a.log.Warn("backend describe failed, retrying",
				zap.String("reservation_id", reservationID),
				zap.Error(err))
			time.Sleep(a.pollInterval)
			continue
		}

		if ready(instances, spec.Count) {
			res := &registry.Reservation{
				ID:    reservationID,
				State: wire.StateRunning,
			}
			for _, inst := range instances {
				res.PublicIPs = append(res.PublicIPs, inst.PublicIP)
				res.PrivateIPs = append(res.PrivateIPs, inst.PrivateIP)
				res.InstanceIDs = append(res.InstanceIDs, inst.ID)
			}
			if err := a.store.Put(ctx, res); err != nil {
				a.log.Error("failed to record reservation",
					zap.String("reservation_id", reservationID),
					zap.Error(err))
				return
			}
			a.log.Info("reservation running",
				zap.String("reservation_id", reservationID),
				zap.Int("instances", len(instances)))
			return
		}

		time.Sleep(a.pollInterval)
	}

	a.markFailed(ctx, reservationID, "timed out waiting for instances to become reachable")
}

// ready reports whether every requested machine is running with addresses.
func ready(instances []backend.Instance, count int) bool {
	if len(instances) < count {
		return false
	}
	for _, inst := range instances {
		if inst.Status != backend.StatusRunning || inst.PublicIP == "" {
			return false
		}
	}
	return true
}

func (a *Agent) markFailed(ctx context.Context, reservationID, reason string) {
	a.log.Error("provisioning failed",
		zap.String("reservation_id", reservationID),
		zap.String("reason", reason))
	err := a.store.Put(ctx, &registry.Reservation{
		ID:     reservationID,
		State:  wire.StateFailed,
		Reason: reason,
	})
	if err != nil {
		a.log.Error("failed to record failure",
			zap.String("reservation_id", reservationID),
			zap.Error(err))
	}
}

func (a *Agent) describeInstances(ctx context.Context, params map[string]any) (any, error) {
	reservationID := stringParam(params, "reservation_id")
	if reservationID == "" {
		return nil, fmt.Errorf("reservation_id is required")
	}

	res, err := a.store.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	return wire.DescribeInstancesResponse{
		State:       res.State,
		Reason:      res.Reason,
		PublicIPs:   res.PublicIPs,
		PrivateIPs:  res.PrivateIPs,
		InstanceIDs: res.InstanceIDs,
	}, nil
}

func (a *Agent) terminateInstances(ctx context.Context, params map[string]any) (any, error) {
	ids := stringSliceParam(params, "instance_ids")
	if len(ids) == 0 {
		return wire.TerminateInstancesResponse{Success: false, Reason: "instance_ids is required"}, nil
	}

	if err := a.backend.Terminate(ctx, ids); err != nil {
		return wire.TerminateInstancesResponse{Success: false, Reason: err.Error()}, nil
	}
	a.log.Info("instances terminated", zap.Strings("instance_ids", ids))
	return wire.TerminateInstancesResponse{Success: true}, nil
}

func (a *Agent) attachDisk(ctx context.Context, params map[string]any) (any, error) {
	diskName := stringParam(params, "disk_name")
	instanceID := stringParam(params, "instance_id")
	if diskName == "" || instanceID == "" {
		return wire.AttachDiskResponse{Success: false, Reason: "disk_name and instance_id are required"}, nil
	}

	location, err := a.backend.AttachDisk(ctx, diskName, instanceID)
	if err != nil {
		return wire.AttachDiskResponse{Success: false, Reason: err.Error()}, nil
	}
	a.log.Info("disk attached",
		zap.String("disk_name", diskName),
		zap.String("instance_id", instanceID),
		zap.String("location", location))
	return wire.AttachDiskResponse{Success: true, Location: location}, nil
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

// intParam accepts both Go ints and the float64 JSON numbers decode to.
func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// stringSliceParam accepts a list of ids or a bare single id.
func stringSliceParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	default:
		return nil
	}
}
