// Command arcana is the entrypoint for trade ingestion and bar building.
//
// Boot sequence mirrors the teacher bot's main.go:
//   1) config.Load()            – read .env, build runtime Config
//   2) wire source/store
//   3) start Prometheus /healthz + /metrics server on cfg.Port
//   4) run the selected subcommand
//
// Subcommands:
//   backfill -since <RFC3339> -until <RFC3339>   One-shot historical ingest
//   daemon                                       Continuous near-real-time ingest
//   build -bar <spec>                            Replay stored trades into bars
//   plan -since <RFC3339> -until <RFC3339> -n N  Print a swarm.Manifest as JSON
//   validate -since <RFC3339> -until <RFC3339>   Print UTC days with zero stored trades
//
// Example:
//   arcana daemon
//   arcana backfill -since 2024-01-01T00:00:00Z -until 2024-01-02T00:00:00Z
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcanahq/arcana/bar"
	"github.com/arcanahq/arcana/config"
	"github.com/arcanahq/arcana/decimalx"
	"github.com/arcanahq/arcana/ingest"
	"github.com/arcanahq/arcana/metrics"
	"github.com/arcanahq/arcana/source"
	"github.com/arcanahq/arcana/store"
	"github.com/arcanahq/arcana/swarm"
	"github.com/arcanahq/arcana/trade"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: arcana <backfill|daemon|build|plan|validate> [flags]")
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	cfg := config.Load()

	st, err := store.NewPostgresStore(cfg.DatabaseDSN, cfg.BatchSize)
	if err != nil {
		log.Fatalf("[BOOT] store init: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := st.InitSchema(ctx); err != nil {
		log.Fatalf("[BOOT] schema init: %v", err)
	}

	srv := startMetricsServer(cfg.Port)
	defer shutdown(srv)

	src := source.NewHTTPSource(cfg.APIBase, cfg.SourceTag, cfg.PageLimit, cfg.MinDelay)

	switch cmd {
	case "backfill":
		runBackfill(ctx, args, cfg, src, st)
	case "daemon":
		runDaemon(ctx, cfg, src, st)
	case "build":
		runBuild(ctx, args, cfg, st)
	case "plan":
		runPlan(args, cfg)
	case "validate":
		runValidate(ctx, args, cfg, src, st)
	default:
		log.Fatalf("unknown subcommand %q", cmd)
	}
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		log.Printf("[BOOT] serving metrics on :%d/metrics", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[BOOT] server: %v", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runBackfill(ctx context.Context, args []string, cfg config.Config, src source.TradeSource, st store.Store) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	since := fs.String("since", "", "RFC3339 start (inclusive)")
	until := fs.String("until", "", "RFC3339 end (exclusive)")
	pair := fs.String("pair", cfg.Pair, "trading pair")
	fs.Parse(args)

	sinceT, err := time.Parse(time.RFC3339, *since)
	if err != nil {
		log.Fatalf("[INGEST] bad -since: %v", err)
	}
	untilT, err := time.Parse(time.RFC3339, *until)
	if err != nil {
		log.Fatalf("[INGEST] bad -until: %v", err)
	}

	ig := ingest.New(src, st, cfg.SourceTag, *pair, time.Duration(cfg.WindowSeconds)*time.Second, cfg.BatchSize)
	if err := ig.Backfill(ctx, sinceT, untilT); err != nil {
		log.Fatalf("[INGEST] backfill failed: %v", err)
	}
}

func runDaemon(ctx context.Context, cfg config.Config, src source.TradeSource, st store.Store) {
	ig := ingest.New(src, st, cfg.SourceTag, cfg.Pair, time.Duration(cfg.WindowSeconds)*time.Second, cfg.BatchSize)
	if err := ig.Run(ctx, cfg.DaemonInterval); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("[DAEMON] stopped: %v", err)
	}
}

func runBuild(ctx context.Context, args []string, cfg config.Config, st store.Store) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	barSpec := fs.String("bar", "", "bar spec, e.g. tick_500, dollar_25000, time_5m, tib_20")
	pair := fs.String("pair", cfg.Pair, "trading pair")
	fs.Parse(args)

	spec, err := decimalx.ParseBarSpec(*barSpec)
	if err != nil {
		log.Printf("[BUILD] %v", err)
		os.Exit(2)
	}

	builder, err := newBuilderFromSpec(ctx, st, cfg.SourceTag, *pair, spec)
	if err != nil {
		log.Fatalf("[BUILD] %v", err)
	}

	lastBar, hasLast, err := st.LastBar(ctx, spec.Raw, cfg.SourceTag, *pair)
	if err != nil {
		log.Fatalf("[BUILD] last bar lookup: %v", err)
	}
	since := time.Unix(0, 0).UTC()
	if hasLast {
		since = lastBar.TimeEnd
	}
	trades, err := st.TradesSince(ctx, cfg.SourceTag, *pair, since)
	if err != nil {
		log.Fatalf("[BUILD] trades since: %v", err)
	}

	bars := builder.ProcessTrades(trades)
	if flushed, ok := builder.Flush(); ok {
		bars = append(bars, flushed)
	}
	if err := st.InsertBars(ctx, bars); err != nil {
		log.Fatalf("[BUILD] insert bars: %v", err)
	}
	metrics.IncBarsEmitted(spec.Raw, *pair, len(bars))
	log.Printf("[BUILD] pair=%s bar=%s emitted=%d", *pair, spec.Raw, len(bars))
}

func newBuilderFromSpec(ctx context.Context, st store.Store, sourceTag, pair string, spec decimalx.BarSpec) (bar.Builder, error) {
	seed := loadSeed(ctx, st, spec.Raw, sourceTag, pair)
	window := int(spec.IntParam)
	switch spec.Family {
	case decimalx.FamilyTick:
		return bar.NewTickBuilder(sourceTag, pair, spec.IntParam, spec.Raw), nil
	case decimalx.FamilyVolume:
		return bar.NewVolumeBuilder(sourceTag, pair, spec.DecParam, spec.Raw), nil
	case decimalx.FamilyDollar:
		return bar.NewDollarBuilder(sourceTag, pair, spec.DecParam, spec.Raw), nil
	case decimalx.FamilyTime:
		return bar.NewTimeBuilder(sourceTag, pair, spec.Duration, spec.Raw), nil
	case decimalx.FamilyTIB:
		return bar.NewImbalanceBuilder(sourceTag, pair, bar.UnitTick, window, seed), nil
	case decimalx.FamilyVIB:
		return bar.NewImbalanceBuilder(sourceTag, pair, bar.UnitVolume, window, seed), nil
	case decimalx.FamilyDIB:
		return bar.NewImbalanceBuilder(sourceTag, pair, bar.UnitDollar, window, seed), nil
	case decimalx.FamilyTRB:
		return bar.NewRunBuilder(sourceTag, pair, bar.UnitTick, window, seed), nil
	case decimalx.FamilyVRB:
		return bar.NewRunBuilder(sourceTag, pair, bar.UnitVolume, window, seed), nil
	case decimalx.FamilyDRB:
		return bar.NewRunBuilder(sourceTag, pair, bar.UnitDollar, window, seed), nil
	default:
		return nil, fmt.Errorf("unsupported bar family %q", spec.Family)
	}
}

func loadSeed(ctx context.Context, st store.Store, barType, sourceTag, pair string) *trade.EWMAState {
	lastBar, ok, err := st.LastBar(ctx, barType, sourceTag, pair)
	if err != nil || !ok {
		return nil
	}
	st2, ok := trade.EWMAStateFromMetadata(lastBar.Metadata)
	if !ok {
		return nil
	}
	return &st2
}

func runPlan(args []string, cfg config.Config) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	since := fs.String("since", "", "RFC3339 start (inclusive)")
	until := fs.String("until", "", "RFC3339 end (exclusive)")
	n := fs.Int("n", 4, "number of workers")
	pair := fs.String("pair", cfg.Pair, "trading pair")
	fs.Parse(args)

	sinceT, err := time.Parse(time.RFC3339, *since)
	if err != nil {
		log.Fatalf("[SWARM] bad -since: %v", err)
	}
	untilT, err := time.Parse(time.RFC3339, *until)
	if err != nil {
		log.Fatalf("[SWARM] bad -until: %v", err)
	}

	manifest, err := swarm.Plan(*pair, sinceT, untilT, *n)
	if err != nil {
		log.Fatalf("[SWARM] %v", err)
	}
	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		log.Fatalf("[SWARM] marshal manifest: %v", err)
	}
	fmt.Println(string(out))
}

func runValidate(ctx context.Context, args []string, cfg config.Config, src source.TradeSource, st store.Store) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	since := fs.String("since", "", "RFC3339 start (inclusive)")
	until := fs.String("until", "", "RFC3339 end (exclusive)")
	pair := fs.String("pair", cfg.Pair, "trading pair")
	fs.Parse(args)

	sinceT, err := time.Parse(time.RFC3339, *since)
	if err != nil {
		log.Fatalf("[SWARM] bad -since: %v", err)
	}
	untilT, err := time.Parse(time.RFC3339, *until)
	if err != nil {
		log.Fatalf("[SWARM] bad -until: %v", err)
	}

	gaps, err := swarm.Validate(ctx, st, src, cfg.SourceTag, *pair, sinceT, untilT)
	if err != nil {
		log.Fatalf("[SWARM] validate: %v", err)
	}
	if len(gaps) == 0 {
		log.Printf("[SWARM] pair=%s no gaps in [%s,%s)", *pair, sinceT.Format(time.RFC3339), untilT.Format(time.RFC3339))
		return
	}
	for _, g := range gaps {
		fmt.Println(g.Day.Format("2006-01-02"))
	}
	log.Printf("[SWARM] pair=%s found %d gap day(s) in [%s,%s)", *pair, len(gaps), sinceT.Format(time.RFC3339), untilT.Format(time.RFC3339))
}
