package main

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/cloudseg/internal/api"
	"github.com/banshee-data/cloudseg/internal/config"
	"github.com/banshee-data/cloudseg/internal/monitoring"
	"github.com/banshee-data/cloudseg/internal/orchestrator"
	"github.com/banshee-data/cloudseg/internal/rpc"
	"github.com/banshee-data/cloudseg/internal/testutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func parse(args ...string) (options, []string, error) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseFlags(fs, args)
}

func TestParseFlagsDefaults(t *testing.T) {
	o, rest, err := parse()
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, ":8080", o.listen)
	assert.Equal(t, ":50051", o.grpcListen)
	assert.Equal(t, "segmentation.db", o.dbPath)
	assert.True(t, o.suspendStreamOnGoal)
	assert.Equal(t, 64, o.goalHistory)
	assert.Equal(t, 10000, o.goalRetention)
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, o options, rest []string)
	}{
		{
			name: "overrides",
			args: []string{"-listen", ":9000", "-grpc-listen", "", "-db", "", "-suspend-stream-on-goal=false", "-goal-history", "8", "-goal-retention", "0"},
			check: func(t *testing.T, o options, _ []string) {
				assert.Equal(t, ":9000", o.listen)
				assert.Empty(t, o.grpcListen)
				assert.Empty(t, o.dbPath)
				assert.False(t, o.suspendStreamOnGoal)
				assert.Equal(t, 8, o.goalHistory)
				assert.Zero(t, o.goalRetention)
			},
		},
		{
			name: "migrate subcommand",
			args: []string{"-db", "x.db", "migrate", "status"},
			check: func(t *testing.T, o options, rest []string) {
				assert.Equal(t, "x.db", o.dbPath)
				assert.Equal(t, []string{"migrate", "status"}, rest)
			},
		},
		{name: "empty listen", args: []string{"-listen", ""}, wantErr: true},
		{name: "zero history", args: []string{"-goal-history", "0"}, wantErr: true},
		{name: "negative retention", args: []string{"-goal-retention", "-1"}, wantErr: true},
		{name: "unknown flag", args: []string{"-bogus"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, rest, err := parse(tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, o, rest)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSegmentation(), cfg.Resolve())

	path := filepath.Join(t.TempDir(), "seg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("outlier_cost: 0.04\nmin_inliers_per_plane: 20\n"), 0o644))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	resolved := cfg.Resolve()
	assert.InDelta(t, 0.0004, resolved.SmoothCost, 1e-12)
	assert.InDelta(t, 0.4, resolved.LabelCost, 1e-12)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func testOptions(t *testing.T) options {
	t.Helper()
	o, _, err := parse("-db", filepath.Join(t.TempDir(), "node.db"), "-grpc-listen", "")
	require.NoError(t, err)
	return o
}

func TestNewNodeServesAPI(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	n, err := newNode(testOptions(t))
	require.NoError(t, err)
	t.Cleanup(n.close)

	assert.Nil(t, n.bridge, "no broker configured")
	assert.Nil(t, n.grpc, "gRPC disabled")
	require.NotNil(t, n.store)
	assert.Equal(t, 10000, n.store.Retain)

	h, err := n.handler()
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	n.orch.Start()
	n.orch.OnStreamFrame(testutil.LineCloud(200, 1))

	c := api.NewClient(ts.URL, ts.Client())
	ctx := context.Background()
	id, err := c.AcceptGoal(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := c.Goal(ctx, id)
		return err == nil && st.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	// Goal history is served from the database.
	goals, err := c.ListGoals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, id, goals[0].ID)
	stored, err := n.store.GetGoal(id)
	require.NoError(t, err)
	assert.Equal(t, 200, stored.InputPoints)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, st.Components, "broadcast")
	assert.False(t, st.Orchestrator.Enabled, "goal suspends stream publication")

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// Goals that only live in the database are still served over gRPC.
func TestNewNodeGRPCReadsGoalStore(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	o, _, err := parse("-db", filepath.Join(t.TempDir(), "node.db"), "-grpc-listen", "127.0.0.1:0")
	require.NoError(t, err)
	n, err := newNode(o)
	require.NoError(t, err)
	t.Cleanup(n.close)
	require.NotNil(t, n.grpc)

	require.NoError(t, n.store.RecordGoal(orchestrator.GoalStatus{
		ID:          "stored",
		State:       orchestrator.GoalSucceeded,
		InputPoints: 12,
		AcceptedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = n.grpc.Serve(lis) }()
	t.Cleanup(n.grpc.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := rpc.NewSegmentationClient(conn).GetGoal(ctx, wrapperspb.String("stored"))
	require.NoError(t, err)
	st, err := rpc.GoalFromMessage(resp)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.GoalSucceeded, st.State)
	assert.Equal(t, 12, st.InputPoints)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	o, _, err := parse("-listen", "127.0.0.1:0", "-grpc-listen", "127.0.0.1:0", "-db", "")
	require.NoError(t, err)
	n, err := newNode(o)
	require.NoError(t, err)
	require.NotNil(t, n.grpc)
	assert.Nil(t, n.store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestNewNodeBadConfig(t *testing.T) {
	o := testOptions(t)
	o.configPath = filepath.Join(t.TempDir(), "nope.yaml")
	_, err := newNode(o)
	assert.Error(t, err)
}
