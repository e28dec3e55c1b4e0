package e2e_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"vmbroker/internal/agent"
	"vmbroker/internal/agent/backend"
	"vmbroker/internal/agent/registry"
	"vmbroker/internal/client"
	"vmbroker/internal/credentials"
	"vmbroker/internal/rpc"
	"vmbroker/internal/wire"
)

const testSecret = "e2e-secret"

// The full stack: real broker client talking over TLS to a real agent
// handler stack running the simulator backend.
var _ = Describe("Provisioning through the agent", func() {
	var (
		server *httptest.Server
		sim    *backend.Simulator
		broker *client.Broker
		caller *rpc.Client
		creds  credentials.Credentials
	)

	BeforeEach(func() {
		sim = backend.NewSimulator()
		a := agent.New(agent.Config{Secret: testSecret, PoolSize: 2},
			registry.NewMemoryStore(), sim, zap.NewNop())
		server = httptest.NewTLSServer(a.Handler())

		creds = credentials.Credentials{
			Infrastructure: "sim",
			ImageID:        "img-e2e",
			InstanceType:   "standard-1",
		}
		caller = rpc.NewClient(server.URL, testSecret)
		broker = client.NewBroker(caller, creds, zap.NewNop())
		broker.PollInterval = 10 * time.Millisecond
	})

	AfterEach(func() {
		server.Close()
	})

	It("spawns machines and projects aligned records", func(ctx SpecContext) {
		records, err := broker.SpawnInstances(ctx, 3,
			client.UniformRole("appserver"), []string{"d0", "d1", "d2"})
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(3))

		for i, record := range records {
			Expect(record.Role).To(Equal("appserver"))
			Expect(record.PublicIP).NotTo(BeEmpty())
			Expect(record.PrivateIP).NotTo(BeEmpty())
			Expect(record.InstanceID).NotTo(BeEmpty())
			Expect(record.DiskID).To(Equal([]string{"d0", "d1", "d2"}[i]))
		}
	}, SpecTimeout(10*time.Second))

	It("assigns per-machine roles positionally", func(ctx SpecContext) {
		records, err := broker.SpawnInstances(ctx, 2,
			client.PerInstanceRoles("controller", "worker"), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[0].Role).To(Equal("controller"))
		Expect(records[1].Role).To(Equal("worker"))
	}, SpecTimeout(10*time.Second))

	It("terminates spawned machines", func(ctx SpecContext) {
		records, err := broker.SpawnInstances(ctx, 1, client.UniformRole("appserver"), nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := broker.TerminateInstances(ctx, records[0].InstanceID)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Success).To(BeTrue())
	}, SpecTimeout(10*time.Second))

	It("attaches a disk and reports its location", func(ctx SpecContext) {
		records, err := broker.SpawnInstances(ctx, 1, client.UniformRole("appserver"), nil)
		Expect(err).NotTo(HaveOccurred())

		location, err := broker.AttachDisk(ctx, "vol-e2e", records[0].InstanceID)
		Expect(err).NotTo(HaveOccurred())
		Expect(location).To(Equal("/dev/sdb"))

		disk, ok := sim.Attached(records[0].InstanceID)
		Expect(ok).To(BeTrue())
		Expect(disk).To(Equal("vol-e2e"))
	}, SpecTimeout(10*time.Second))

	It("returns identical describe results for unchanged state", func(ctx SpecContext) {
		params := creds.CallParameters()
		params["num_vms"] = 2

		var run wire.RunInstancesResponse
		Expect(caller.Call(ctx, wire.MethodRunInstances, params, &run)).To(Succeed())
		Expect(run.Success).To(BeTrue())

		Eventually(func(g Gomega) {
			desc, err := broker.DescribeInstances(ctx, run.ReservationID)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(desc.State).To(Equal(wire.StateRunning))
		}).WithTimeout(5 * time.Second).WithPolling(10 * time.Millisecond).Should(Succeed())

		first, err := broker.DescribeInstances(ctx, run.ReservationID)
		Expect(err).NotTo(HaveOccurred())
		second, err := broker.DescribeInstances(ctx, run.ReservationID)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	}, SpecTimeout(10*time.Second))

	It("fails fast when the caller's deadline passes on a rejected call", func() {
		badCaller := rpc.NewClient(server.URL, "wrong-secret")
		badBroker := client.NewBroker(badCaller,
			credentials.Credentials{Infrastructure: "sim"}, zap.NewNop())

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := badBroker.SpawnInstances(ctx, 1, client.UniformRole("appserver"), nil)
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})
})
