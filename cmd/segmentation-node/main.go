// Command segmentation-node serves point-cloud segmentation over MQTT
// streams, HTTP and gRPC requests, and asynchronous goals.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/cloudseg/internal/api"
	"github.com/banshee-data/cloudseg/internal/config"
	"github.com/banshee-data/cloudseg/internal/db"
	"github.com/banshee-data/cloudseg/internal/mqttbridge"
	"github.com/banshee-data/cloudseg/internal/orchestrator"
	"github.com/banshee-data/cloudseg/internal/publish"
	"github.com/banshee-data/cloudseg/internal/rpc"
	"github.com/banshee-data/cloudseg/internal/segmentation"
	"github.com/banshee-data/cloudseg/internal/version"
)

const (
	mqttConnectTimeout = 10 * time.Second
	shutdownTimeout    = 5 * time.Second
)

type options struct {
	configPath          string
	listen              string
	grpcListen          string
	dbPath              string
	mqttBroker          string
	suspendStreamOnGoal bool
	goalHistory         int
	goalRetention       int
	showVersion         bool
}

func parseFlags(fs *flag.FlagSet, args []string) (options, []string, error) {
	var o options
	fs.StringVar(&o.configPath, "config", "", "Segmentation config file (.json, .yaml or .yml); defaults apply when empty")
	fs.StringVar(&o.listen, "listen", ":8080", "HTTP listen address")
	fs.StringVar(&o.grpcListen, "grpc-listen", ":50051", "gRPC listen address; empty disables gRPC")
	fs.StringVar(&o.dbPath, "db", "segmentation.db", "Goal history database; empty keeps history in memory only")
	fs.StringVar(&o.mqttBroker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (MQTT_BROKER overrides)")
	fs.BoolVar(&o.suspendStreamOnGoal, "suspend-stream-on-goal", true, "Disable stream publication when a goal is accepted")
	fs.IntVar(&o.goalHistory, "goal-history", orchestrator.DefaultConfig().GoalHistory, "Goals kept in memory for lookup")
	fs.IntVar(&o.goalRetention, "goal-retention", 10000, "Goals kept in the database; 0 keeps all")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	if o.listen == "" {
		return o, nil, fmt.Errorf("listen address is required")
	}
	if o.goalHistory <= 0 {
		return o, nil, fmt.Errorf("goal-history must be positive, got %d", o.goalHistory)
	}
	if o.goalRetention < 0 {
		return o, nil, fmt.Errorf("goal-retention must not be negative, got %d", o.goalRetention)
	}
	return o, fs.Args(), nil
}

func loadConfig(path string) (*config.SegmentationConfig, error) {
	if path == "" {
		return config.EmptySegmentationConfig(), nil
	}
	return config.LoadSegmentationConfig(path)
}

func main() {
	o, args, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if o.showVersion {
		fmt.Println(version.String("segmentation-node"))
		return
	}
	if len(args) > 0 && args[0] == "migrate" {
		if o.dbPath == "" {
			log.Fatal("migrate requires -db")
		}
		if err := db.RunMigrateCommand(args[1:], o.dbPath, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	n, err := newNode(o)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := n.run(ctx); err != nil {
		log.Fatalf("segmentation-node: %v", err)
	}
	log.Print("segmentation-node stopped")
}

// node holds every long-lived component of the process.
type node struct {
	opts   options
	orch   *orchestrator.Orchestrator
	hub    *publish.Hub
	bridge *mqttbridge.Bridge
	store  *db.DB
	api    *api.Server
	grpc   *rpc.GRPCServer
}

func newNode(o options) (*node, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	engine, err := segmentation.NewRegionGrowing(cfg.Resolve())
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded segmentation config: %+v", engine.GetConfig())

	n := &node{opts: o, hub: publish.NewHub(publish.DefaultHubConfig())}

	sinks := publish.Multi{n.hub}
	mqttOpts := mqttbridge.OptionsFromConfig(cfg, o.mqttBroker)
	if mqttOpts.Broker != "" {
		if n.bridge, err = mqttbridge.Dial(mqttOpts, nil); err != nil {
			return nil, err
		}
		sinks = append(sinks, n.bridge)
	} else {
		log.Print("No MQTT broker configured; stream input and MQTT output disabled")
	}

	n.orch = orchestrator.New(engine, sinks, orchestrator.Config{
		SuspendStreamOnGoal: o.suspendStreamOnGoal,
		GoalHistory:         o.goalHistory,
	})

	var goals api.GoalLister = n.orch
	if o.dbPath != "" {
		if n.store, err = db.NewDB(o.dbPath); err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		n.store.Retain = o.goalRetention
		n.orch.SetGoalRecorder(n.store)
		goals = n.store
	}

	n.api = api.NewServer(n.orch, goals)
	n.api.AddStatusSource("broadcast", func() interface{} { return n.hub.Stats() })
	if n.bridge != nil {
		n.bridge.SetSink(n.orch)
		n.api.AddStatusSource("mqtt", func() interface{} { return n.bridge.Stats() })
	}
	if o.grpcListen != "" {
		svc := rpc.NewServer(n.orch, n.hub)
		if n.store != nil {
			svc.SetGoalStore(n.store)
		}
		n.grpc = rpc.NewGRPCServer(svc)
	}
	return n, nil
}

func (n *node) handler() (http.Handler, error) {
	mux := n.api.ServeMux()
	if n.store != nil {
		if err := n.store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return api.LoggingMiddleware(mux), nil
}

// run serves until ctx ends or a server fails, then shuts everything down
// in dependency order.
func (n *node) run(ctx context.Context) error {
	h, err := n.handler()
	if err != nil {
		return err
	}
	if err := n.hub.Start(); err != nil {
		return err
	}
	n.orch.Start()

	if n.bridge != nil {
		if err := n.bridge.Connect(mqttConnectTimeout); err != nil {
			// The client keeps retrying in the background.
			log.Printf("MQTT: %v", err)
		}
	}

	server := &http.Server{Addr: n.opts.listen, Handler: h}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("HTTP listening on %s", n.opts.listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if n.grpc != nil {
		g.Go(func() error {
			return n.grpc.Listen(n.opts.grpcListen)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Print("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
		// Stopping the hub ends open result streams so the gRPC server can
		// drain.
		n.hub.Stop()
		if n.grpc != nil {
			n.grpc.Stop()
		}
		return nil
	})

	err = g.Wait()
	n.close()
	return err
}

// close stops the orchestrator before the bridge so no publish starts
// while the bridge drains.
func (n *node) close() {
	n.orch.Close()
	if n.bridge != nil {
		n.bridge.Disconnect()
	}
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			log.Printf("DB close: %v", err)
		}
	}
}
