package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/chaos"
	"main/internal/core"
	"main/internal/exec"
	"main/internal/gateway"
	"main/internal/mdg"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/state"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	duration := flag.Duration("duration", time.Minute, "How long to run the paper session (0=until interrupted)")
	interval := flag.Duration("interval", 10*time.Millisecond, "Delay between synthetic batches")
	seed := flag.Int64("seed", 1, "Seed for the synthetic walk")
	basePrice := flag.Int64("base-price", 10000, "Base price in scaled integer units")
	chaosDrop := flag.Float64("chaos-drop", 0, "Probability of dropping a market-data event")
	chaosDup := flag.Float64("chaos-dup", 0, "Probability of duplicating a market-data event")
	chaosReorder := flag.Int("chaos-reorder", 1, "Reorder window for market-data events (1=off)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chaosCfg := chaos.Config{
		Seed:          *seed,
		DropRate:      *chaosDrop,
		DuplicateRate: *chaosDup,
		ReorderWindow: *chaosReorder,
	}
	if err := run(ctx, *configPath, *duration, *interval, *seed, *basePrice, chaosCfg); err != nil {
		log.Fatalf("paper: %v", err)
	}
}

func run(ctx context.Context, configPath string, duration, interval time.Duration, seed, basePrice int64, chaosCfg chaos.Config) error {
	loaded, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	var faults *chaos.Engine
	if chaosCfg.Enabled() {
		faults, err = chaos.NewEngine(chaosCfg)
		if err != nil {
			return err
		}
	}
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	generator, err := mdg.NewGenerator(loaded.Registry, mdg.Config{
		BasePrice: schema.Price(basePrice),
		Seed:      seed,
	})
	if err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	positions := state.NewPositionReducer()

	router := &paperRouter{}
	simulator := mdg.NewSimulator(router)
	gw := gateway.New(gateway.Config{Session: "paper", ResendOnReconnect: true}, simulator)

	sup := core.NewSupervisor(loaded.Registry, core.Deps{
		Sender:             gw,
		Resync:             generator,
		Positions:          positions,
		IDs:                exec.NewIDSource(0),
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
	router.sup = sup
	router.gw = gw
	sup.Start(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-ticker.C:
			for _, event := range generator.Next(now) {
				if faults == nil {
					sup.DispatchMarketData(event)
					continue
				}
				for _, out := range faults.Process(event) {
					sup.DispatchMarketData(out)
				}
			}
		}
	}
	if faults != nil {
		for _, out := range faults.Flush() {
			sup.DispatchMarketData(out)
		}
	}

	sup.Stop()

	for i := 0; i < loaded.Registry.SymbolCount(); i++ {
		sym, _ := loaded.Registry.SymbolAt(i)
		pos := positions.Position(sym.ID)
		logs.Infof("%s position %d avgPx %d realizedPnl %d",
			sym.Name, pos.Qty, pos.AvgPx, pos.RealizedPnL)
	}
	snapshot := metrics.Snapshot()
	logs.Infof("counters=%v tick_latency=%+v decision_latency=%+v",
		snapshot.Counts, snapshot.TickLatency, snapshot.DecisionLatency)
	return nil
}

// paperRouter feeds simulator reports back through the gateway dedup and
// into the symbol loops, like the live feed dispatcher does.
type paperRouter struct {
	sup *core.Supervisor
	gw  *gateway.Gateway
}

func (r *paperRouter) DispatchExecReport(ctx context.Context, e schema.Inbound) error {
	switch ev := e.(type) {
	case schema.ExecReport:
		r.gw.OnExecReport(ev)
	case schema.CancelReject:
		r.gw.OnCancelReject(ev)
	}
	return r.sup.DispatchExecReport(ctx, e)
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Default()
	}
	return ops.Load(path)
}
