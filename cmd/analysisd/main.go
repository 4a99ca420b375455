package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"marketpulse/config"
	"marketpulse/internal/api"
	"marketpulse/internal/execution"
	"marketpulse/internal/gateway"
	"marketpulse/internal/logger"
	"marketpulse/internal/marketdata/agg"
	"marketpulse/internal/marketdata/bus"
	"marketpulse/internal/marketdata/feed"
	"marketpulse/internal/metrics"
	"marketpulse/internal/model"
	"marketpulse/internal/notification"
	"marketpulse/internal/pipeline"
	"marketpulse/internal/portfolio"
	"marketpulse/internal/ringbuf"
	"marketpulse/internal/risk"
	"marketpulse/internal/strategy"
	redisstore "marketpulse/internal/store/redis"
	sqlitestore "marketpulse/internal/store/sqlite"
)

const computeLatencyKey = "metrics:analysisd:compute_ms"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("analysisd", slog.LevelInfo)
	log.Println("[analysisd] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	symbols := cfg.ParseSymbols()
	if cfg.SimMode {
		log.Println("[analysisd] *** SIM MODE — feed auth disabled ***")
	}
	log.Printf("[analysisd] tracking %d symbols: %v", len(symbols), symbols)

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Start SQLite writer (off hot path) ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[analysisd] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommitDone = func(d time.Duration) {
		prom.SQLiteCommitDur.Observe(d.Seconds())
	}
	health.SetSQLiteOK(true)
	log.Println("[analysisd] sqlite writer ready")

	// ---- Start Redis writer ----
	var redisWriter *redisstore.Writer
	redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[analysisd] WARNING: redis init failed: %v (continuing without redis)", err)
		redisWriter = nil
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
		log.Println("[analysisd] redis writer ready")

		redisWriter.OnWriteDone = func(d time.Duration) {
			prom.RedisWriteDur.Observe(d.Seconds())
		}
		redisWriter.Breaker().OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			log.Printf("[analysisd] redis circuit breaker: %s -> %s", from, to)
		}
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Risk gate + analysis pipeline ----
	gate := risk.NewGate(cfg.RiskConfig(), risk.GateConfig{
		MinIncrement:   cfg.MinIncrement,
		HighVolHaircut: cfg.HighVolHaircut,
	})
	pipe := pipeline.New(gate, pipeline.Config{SeriesCapacity: cfg.SeriesCapacity})
	health.SetPipelineOK(true)

	// ---- Notifications on regime change ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	notifier := notification.NewMultiNotifier(backends...)

	pipe.OnRegimeChange = func(prev, next model.RegimeState) {
		prom.RegimeFlips.WithLabelValues(next.Symbol).Inc()
		go notifier.Send(ctx, notification.RegimeChangeAlert(prev, next))
	}

	// ---- Warm up from SQLite history ----
	warmupFromStore(pipe, cfg.SQLitePath, symbols)

	// ---- Risk config hot reload from the gateway ----
	if redisWriter != nil {
		go watchRiskConfig(ctx, redisWriter, gate)
	}

	// ---- Pipeline channels ----
	feedCh := make(chan model.PricePoint, 10000)
	aggCh := make(chan model.PricePoint, 10000)
	priceCh := make(chan model.PricePoint, 10000)
	updateCh := make(chan pipeline.Update, 5000)

	// ---- Ring buffer decouples the feed reader from the fan-out ----
	ring := ringbuf.New(16384)
	var lastPriceNano atomic.Int64

	go func() { // producer: feed -> ring
		for {
			select {
			case <-ctx.Done():
				return
			case pt, ok := <-feedCh:
				if !ok {
					return
				}
				prom.PricesTotal.Inc()
				lastPriceNano.Store(time.Now().UnixNano())
				if !ring.Push(pt) {
					prom.RingBufOverflow.Inc()
				}
			}
		}
	}()

	go func() { // consumer: ring -> aggCh
		idle := time.NewTicker(time.Millisecond)
		defer idle.Stop()
		for {
			pt, ok := ring.Pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-idle.C:
				}
				continue
			}
			select {
			case aggCh <- pt:
			case <-ctx.Done():
				return
			}
		}
	}()

	// ---- 1s coalescer: many ticks per second become one point ----
	aggregator := agg.New()
	aggregator.OnDroppedTick = func() {
		prom.DroppedTicks.Inc()
	}
	go aggregator.Run(ctx, aggCh, priceCh)

	// ---- Fan-out raw prices (SQLite + Redis + pipeline) ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	sqlitePriceCh := fanout.Subscribe()
	var redisPriceCh <-chan model.PricePoint
	if redisWriter != nil {
		redisPriceCh = fanout.Subscribe()
	}
	pipelineIn := fanout.Subscribe()

	go fanout.Run(ctx, priceCh)

	go sqlWriter.RunPrices(ctx, sqlitePriceCh)
	if redisWriter != nil && redisPriceCh != nil {
		go redisWriter.RunPrices(ctx, redisPriceCh)
	}

	// ---- Analysis loop (HOT PATH) ----
	var lastComputeMicros atomic.Int64
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case pt, ok := <-pipelineIn:
				if !ok {
					return
				}
				start := time.Now()
				upd, err := pipe.OnPrice(pt)
				elapsed := time.Since(start)
				prom.ComputeDur.Observe(elapsed.Seconds())
				lastComputeMicros.Store(elapsed.Microseconds())

				if err != nil {
					if model.IsKind(err, model.KindOutOfOrderTimestamp) {
						prom.OutOfOrderTotal.Inc()
					} else {
						log.Printf("[analysisd] %s: %v", pt.Symbol, err)
					}
					continue
				}
				if upd == nil {
					continue
				}
				prom.UpdatesTotal.Inc()
				select {
				case updateCh <- *upd:
				default:
				}
			}
		}
	}()

	// ---- Decision sinks (Redis stream + SQLite) ----
	var decisionWriters []model.DecisionWriter
	if redisWriter != nil {
		decisionWriters = append(decisionWriters, redisWriter)
	}
	decisionWriters = append(decisionWriters, sqlWriter)

	// ---- Paper trading: strategy signals through the risk gate ----
	book := portfolio.New()
	pnl := portfolio.NewPnLTracker()
	var stratCh chan strategy.MarketUpdate
	var journal *execution.Journal

	if cfg.StrategyEnabled {
		var err error
		journal, err = execution.NewJournal(cfg.TradesDBPath)
		if err != nil {
			log.Fatalf("[analysisd] trade journal init failed: %v", err)
		}
		defer journal.Close()

		engine := strategy.NewEngine(256)
		engine.Register(strategy.NewEMACrossover(true))

		executor := execution.NewPaperExecutor(execution.PaperExecutorConfig{
			SlippageBps:  cfg.SlippageBps,
			RiskAmount:   cfg.Capital * cfg.RiskPerTradePct / 100,
			MaxPositions: cfg.MaxPositions,
		}, pipe, book, pnl, journal)

		stratCh = make(chan strategy.MarketUpdate, 1000)
		go engine.Run(ctx, stratCh)
		go executor.Run(ctx, engine.Signals())

		// Count gate outcomes and persist paper decisions
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case res, ok := <-executor.Results():
					if !ok {
						return
					}
					if res.Decision.Symbol == "" {
						continue
					}
					outcome := "accepted"
					if !res.Decision.Accepted {
						outcome = string(res.Decision.Reason)
					}
					prom.RiskEvaluations.WithLabelValues(outcome).Inc()
					for _, wr := range decisionWriters {
						if err := wr.WriteDecision(ctx, res.Decision); err != nil {
							log.Printf("[analysisd] decision write error: %v", err)
						}
					}
				}
			}
		}()
		log.Println("[analysisd] paper trading enabled (EMA crossover)")
	}

	// ---- Fan out derived state to Redis + SQLite (OFF hot path) ----
	redisSnapCh := make(chan model.IndicatorSnapshot, 2000)
	redisRegimeCh := make(chan model.RegimeState, 2000)
	sqliteSnapCh := make(chan model.IndicatorSnapshot, 2000)
	sqliteRegimeCh := make(chan model.RegimeState, 2000)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updateCh:
				if !ok {
					return
				}
				book.UpdatePrice(upd.Point)
				if stratCh != nil {
					select {
					case stratCh <- strategy.MarketUpdate{Snapshot: upd.Snapshot, Price: upd.Point.Price}:
					default:
					}
				}
				select {
				case redisSnapCh <- upd.Snapshot:
				default:
				}
				select {
				case redisRegimeCh <- upd.Regime:
				default:
				}
				select {
				case sqliteSnapCh <- upd.Snapshot:
				default:
				}
				select {
				case sqliteRegimeCh <- upd.Regime:
				default:
				}
			}
		}
	}()

	if redisWriter != nil {
		go redisWriter.RunSnapshots(ctx, redisSnapCh)
		go redisWriter.RunRegimes(ctx, redisRegimeCh)
	}
	go sqlWriter.RunSnapshots(ctx, sqliteSnapCh)
	go sqlWriter.RunRegimes(ctx, sqliteRegimeCh)

	// ---- Periodic housekeeping: saturation gauges, compute latency, health ----
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := fanout.ChannelStats()
				for i, s := range stats {
					if s.Cap > 0 {
						pct := float64(s.Len) / float64(s.Cap) * 100
						prom.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(i)).Set(pct)
					}
				}
				if nano := lastPriceNano.Load(); nano > 0 {
					health.SetLastPriceTime(time.Unix(0, nano))
				}
				if redisWriter != nil {
					ms := float64(lastComputeMicros.Load()) / 1000.0
					setCtx, setCancel := context.WithTimeout(ctx, time.Second)
					redisWriter.Client().Set(setCtx, computeLatencyKey,
						strconv.FormatFloat(ms, 'f', 3, 64), time.Minute)
					setCancel()
				}
			}
		}
	}()

	// ---- Engine HTTP API (order evaluation + in-memory state) ----
	apiRouter, apiMux := api.NewRouter(pipe, decisionWriters...)
	if cfg.StrategyEnabled {
		apiRouter.AttachPaper(api.PaperState{Book: book, PnL: pnl, Journal: journal})
	}
	apiSrv := &http.Server{Addr: cfg.APIAddr, Handler: apiMux}
	go func() {
		log.Printf("[analysisd] api listening on %s", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[analysisd] api server error: %v", err)
		}
	}()

	// ---- Feed ingest ----
	ingest, err := feed.New(feed.Config{
		URL:        cfg.FeedURL,
		APIKey:     cfg.FeedAPIKey,
		TOTPSecret: cfg.FeedTOTPSecret,
		Symbols:    symbols,
	})
	if err != nil {
		log.Fatalf("[analysisd] feed init failed: %v", err)
	}
	ingest.OnReconnect = func() {
		prom.WSReconnects.Inc()
	}
	health.SetFeedConnected(true)

	go func() {
		if err := ingest.Start(ctx, feedCh); err != nil {
			log.Printf("[analysisd] feed stopped: %v", err)
			health.SetFeedConnected(false)
		}
	}()

	log.Println("[analysisd] ╔════════════════════════════════════════════════════════════╗")
	log.Println("[analysisd] ║  Market Analysis Engine                                    ║")
	log.Println("[analysisd] ║                                                            ║")
	log.Println("[analysisd] ║  [Feed WS] → [Ring] → [FanOut] → [Pipeline] → [Redis/SQL]  ║")
	log.Printf("[analysisd] ║  Feed: %-51s ║", cfg.FeedURL)
	log.Printf("[analysisd] ║  Window: %d points, warm-up at 20                          ║", cfg.SeriesCapacity)
	log.Println("[analysisd] ╚════════════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[analysisd] shutdown signal received, cleaning up...")
	cancel()

	// Give goroutines time to flush buffers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}

	log.Println("[analysisd] shutdown complete.")
}

// warmupFromStore replays recent persisted prices through the pipeline so
// symbols can reach Ready without waiting for 20 live points.
func warmupFromStore(pipe *pipeline.Pipeline, dbPath string, symbols []string) {
	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		log.Printf("[analysisd] warm-up skipped: %v", err)
		return
	}
	defer reader.Close()

	afterTS := time.Now().Add(-1 * time.Hour).Unix()
	for _, sym := range symbols {
		pts, err := reader.ReadPrices(sym, afterTS)
		if err != nil {
			log.Printf("[analysisd] warm-up read failed for %s: %v", sym, err)
			continue
		}
		for _, pt := range pts {
			pipe.OnPrice(pt)
		}
		if len(pts) > 0 {
			log.Printf("[analysisd] warm-up: replayed %d points for %s (state=%s)",
				len(pts), sym, pipe.StateOf(sym))
		}
	}
}

// watchRiskConfig applies risk config updates published by the gateway.
func watchRiskConfig(ctx context.Context, w *redisstore.Writer, gate *risk.Gate) {
	pubsub := w.Client().Subscribe(ctx, gateway.RiskConfigChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var cfg model.RiskConfig
			if err := json.Unmarshal([]byte(msg.Payload), &cfg); err != nil {
				log.Printf("[analysisd] bad risk config payload: %v", err)
				continue
			}
			gate.UpdateConfig(cfg)
			log.Printf("[analysisd] risk config reloaded: capital=%.2f risk=%.2f%% stop=%.2f%%",
				cfg.Capital, cfg.RiskPerTradePct, cfg.DailyStopLossPct)
		}
	}
}
