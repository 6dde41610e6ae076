package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/core"
	"main/internal/exec"
	"main/internal/gateway"
	"main/internal/ingest"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/state"
	"main/internal/store"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	snapshotPath := flag.String("snapshot-path", "", "Position snapshot path (overrides config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *snapshotPath); err != nil {
		log.Fatalf("trader: %v", err)
	}
}

func run(ctx context.Context, configPath, snapshotOverride string) error {
	loaded, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	snapshotPath := loaded.Snapshot.Path
	if snapshotOverride != "" {
		snapshotPath = snapshotOverride
	}

	if loaded.Profile.Enabled {
		profiler, err := startProfiler(loaded.Profile)
		if err != nil {
			return err
		}
		defer func() {
			if err := profiler.Stop(); err != nil {
				logs.Errorf("stop profiler: %v", err)
			}
		}()
	}

	metrics := obs.NewMetrics()
	positions := state.NewPositionReducer()
	if snapshotPath != "" {
		if snap, err := state.ReadSnapshot(snapshotPath); err == nil {
			positions.ApplySnapshot(snap)
			logs.Infof("restored %d positions from %s", len(snap.Positions), snapshotPath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	feed := ingest.NewFeed(ctx, ingest.Config{
		Endpoint:      loaded.Feed.Endpoint,
		SnapshotDepth: loaded.Feed.SnapshotDepth,
	}, loaded.Registry)
	if err := feed.Start(ctx); err != nil {
		return err
	}
	defer feed.Close()

	gw := gateway.New(gateway.Config{Session: "live", ResendOnReconnect: true}, feed)

	var recorder core.FillRecorder
	var fillStore *store.Store
	if loaded.Store.Enabled {
		client, err := conn.New(conn.Option{
			Host:     loaded.Store.Host,
			Port:     loaded.Store.Port,
			User:     loaded.Store.User,
			Password: loaded.Store.Password,
			Database: loaded.Store.Database,
			SSLMode:  loaded.Store.SSLMode,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logs.Errorf("close database: %v", err)
			}
		}()
		fillStore, err = store.New(client.DB(), loaded.Queue.ExecReportCapacity)
		if err != nil {
			return err
		}
		go fillStore.Run(ctx)
		recorder = fillStore
	}

	// ClOrdIDs restart above the wall clock so a relaunch never reuses an
	// id the venue has already seen.
	ids := exec.NewIDSource(uint64(time.Now().UTC().UnixNano()))

	sup := core.NewSupervisor(loaded.Registry, core.Deps{
		Sender:             gw,
		Resync:             feed,
		Recorder:           recorder,
		Positions:          positions,
		IDs:                ids,
		Metrics:            metrics,
		Feature:            loaded.Feature,
		Signal:             loaded.Signal.Config,
		OBIThreshold:       loaded.Signal.OBIThreshold,
		Exec:               loaded.Exec,
		Risk:               loaded.Risk,
		LabelHorizon:       loaded.Signal.LabelHorizon,
		MarketDataCapacity: loaded.Queue.MarketDataCapacity,
		ExecReportCapacity: loaded.Queue.ExecReportCapacity,
	})
	sup.Start(ctx)

	if err := feed.Subscribe(ctx); err != nil {
		return err
	}
	unsubscribe := feed.Observe(ctx, &feedDispatcher{sup: sup, gw: gw})
	defer unsubscribe()

	<-ctx.Done()
	logs.Info("shutting down")
	sup.Stop()
	if fillStore != nil {
		fillStore.Close()
	}

	if snapshotPath != "" {
		if err := state.WriteSnapshot(snapshotPath, positions.Snapshot()); err != nil {
			return err
		}
		logs.Infof("positions written to %s", snapshotPath)
	}

	snapshot := metrics.Snapshot()
	logs.Infof("counters=%v tick_latency=%+v decision_latency=%+v",
		snapshot.Counts, snapshot.TickLatency, snapshot.DecisionLatency)
	return nil
}

// feedDispatcher routes decoded feed events: execution reports clear the
// gateway's resend set before reaching the symbol loop.
type feedDispatcher struct {
	sup *core.Supervisor
	gw  *gateway.Gateway
}

func (d *feedDispatcher) DispatchMarketData(e schema.Inbound) {
	d.sup.DispatchMarketData(e)
}

func (d *feedDispatcher) DispatchExecReport(ctx context.Context, e schema.Inbound) error {
	switch ev := e.(type) {
	case schema.ExecReport:
		d.gw.OnExecReport(ev)
	case schema.CancelReject:
		d.gw.OnCancelReject(ev)
	}
	return d.sup.DispatchExecReport(ctx, e)
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Default()
	}
	return ops.Load(path)
}

func startProfiler(cfg ops.ProfileConfig) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          emptyLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...any)  {}
func (emptyLogger) Debugf(string, ...any) {}
func (emptyLogger) Errorf(string, ...any) {}
