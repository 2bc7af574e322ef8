// cmd/uplink/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tamzrod/modbus-uplink/internal/aggregator"
	"github.com/tamzrod/modbus-uplink/internal/api"
	"github.com/tamzrod/modbus-uplink/internal/archive"
	"github.com/tamzrod/modbus-uplink/internal/bridge"
	"github.com/tamzrod/modbus-uplink/internal/config"
	"github.com/tamzrod/modbus-uplink/internal/control"
	"github.com/tamzrod/modbus-uplink/internal/discovery"
	"github.com/tamzrod/modbus-uplink/internal/metrics"
	"github.com/tamzrod/modbus-uplink/internal/registry"
	"github.com/tamzrod/modbus-uplink/internal/scheduler"
	"github.com/tamzrod/modbus-uplink/internal/status"
	"github.com/tamzrod/modbus-uplink/internal/transport/modbus"
	"github.com/tamzrod/modbus-uplink/internal/uplink"
	"github.com/tamzrod/modbus-uplink/internal/writer"
	wmodbus "github.com/tamzrod/modbus-uplink/internal/writer/modbus"
)

func main() {
	cfgPath := flag.String("config", "uplink.yaml", "path to config file")
	validateOnly := flag.Bool("validate", false, "validate config and exit")
	flag.Parse()

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *cfgPath).Msg("config load failed")
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)

	setupLogging(cfg.Log)

	if *validateOnly {
		log.Info().Str("path", *cfgPath).Msg("config ok")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("uplink failed")
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log.Info().Str("node", cfg.Node.ID).Str("bus", cfg.Bus.Kind).Str("address", cfg.Bus.Address).Msg("starting modbus uplink")

	// --------------------
	// Bus + bridge
	// --------------------

	bus, err := modbus.New(modbus.Config{
		Kind:        cfg.Bus.Kind,
		Address:     cfg.Bus.Address,
		BaudRate:    cfg.Bus.BaudRate,
		DataBits:    cfg.Bus.DataBits,
		Parity:      cfg.Bus.Parity,
		StopBits:    cfg.Bus.StopBits,
		Timeout:     ms(cfg.Bus.TimeoutMs),
		IdleTimeout: ms(cfg.Bus.IdleTimeoutMs),
		QueueDepth:  cfg.Bus.QueueDepth,
		RS485: modbus.RS485Config{
			Enabled:            cfg.Bus.RS485.Enabled,
			DelayRtsBeforeSend: ms(cfg.Bus.RS485.DelayRtsBeforeSendMs),
			DelayRtsAfterSend:  ms(cfg.Bus.RS485.DelayRtsAfterSendMs),
			RtsHighDuringSend:  cfg.Bus.RS485.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.Bus.RS485.RtsHighAfterSend,
			RxDuringTx:         cfg.Bus.RS485.RxDuringTx,
		},
	})
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	defer bus.Close()

	br := bridge.New(bus)
	reg := registry.New(cfg.Scheduler.EvictionThreshold)
	disc := discovery.New(br, reg, ms(cfg.Discovery.TimeoutMs))

	// --------------------
	// Status memory (optional)
	// --------------------

	var pub status.Publisher
	if cfg.StatusMemory.Endpoint != "" {
		cli, err := wmodbus.NewEndpointClient(wmodbus.Config{
			Endpoint: cfg.StatusMemory.Endpoint,
			Timeout:  ms(cfg.StatusMemory.TimeoutMs),
		})
		if err != nil {
			return fmt.Errorf("status memory: %w", err)
		}
		defer cli.Close()

		sw, err := writer.NewStatusWriter(cli, cfg.StatusMemory.UnitID)
		if err != nil {
			return fmt.Errorf("status memory: %w", err)
		}
		pub = sw
	}
	tracker := status.NewTracker(pub, ms(cfg.StatusMemory.StaleAfterMs))

	mx := metrics.New()
	mx.TrackDevices(reg.Len)

	// --------------------
	// Uplink sinks
	// --------------------

	var sinks uplink.Fanout
	var store *archive.Store

	if cfg.Uplink.NATS.URL != "" {
		nc, err := uplink.DialNATS(uplink.NATSConfig{
			URL:           cfg.Uplink.NATS.URL,
			Subject:       cfg.Uplink.NATS.Subject,
			Name:          "modbus-uplink",
			MaxReconnects: cfg.Uplink.NATS.MaxReconnects,
			ReconnectWait: ms(cfg.Uplink.NATS.ReconnectWaitMs),
		})
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Close()

		np, err := uplink.NewNATSPublisher(nc, cfg.Uplink.NATS.Subject, cfg.Node.ID)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		sinks = append(sinks, np)
	}

	if cfg.Uplink.Ingest.Endpoint != "" {
		ic, err := uplink.NewIngestClient(uplink.IngestConfig{
			Endpoint: cfg.Uplink.Ingest.Endpoint,
			Timeout:  ms(cfg.Uplink.Ingest.TimeoutMs),
		})
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		sinks = append(sinks, ic)
	}

	if cfg.Archive.DSN != "" {
		store, err = archive.Open(cfg.Archive.DSN, cfg.Node.ID)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		sinks = append(sinks, store)
	}

	if len(sinks) == 0 {
		log.Warn().Msg("no uplink sink configured; payloads are built and dropped")
		sinks = append(sinks, uplink.SinkFunc(func(_ context.Context, msg uplink.Message) error {
			log.Debug().Uint8("message_id", msg.ID).Int("bytes", len(msg.Payload)).Msg("payload dropped, no sink")
			return nil
		}))
	}

	// --------------------
	// Aggregator + scheduler
	// --------------------

	slots := make(aggregator.Slots, 0, len(cfg.Aggregator.Slots))
	for _, id := range cfg.Aggregator.Slots {
		slots = append(slots, uint8(id))
	}

	agg, err := aggregator.New(aggregator.Config{
		Window:     ms(cfg.Aggregator.WindowMs),
		MaxPayload: cfg.Aggregator.MaxPayload,
		EmitEmpty:  cfg.Aggregator.EmitEmpty,
	}, aggregator.NewBuilder(slots, reg), sinks, mx)
	if err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}

	observers := []scheduler.Observer{tracker, mx}
	if store != nil {
		observers = append(observers, store)
	}

	sched, err := scheduler.New(scheduler.Config{
		RequestTimeout: ms(cfg.Scheduler.RequestTimeoutMs),
		IdleSleep:      ms(cfg.Scheduler.IdleSleepMs),
	}, reg, br, agg, observers...)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	node := control.New(reg, disc, sched, tracker)

	// --------------------
	// Run
	// --------------------

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ids := make([]uint8, 0, len(cfg.Discovery.Devices))
		for _, id := range cfg.Discovery.Devices {
			ids = append(ids, uint8(id))
		}
		disc.Bootstrap(ctx, ids, ms(cfg.Discovery.DelayMs))
		for _, d := range reg.Devices() {
			tracker.Register(d.ID)
		}

		sched.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		agg.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.Run(ctx)
	}()

	if store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Run(ctx)
		}()
	}

	var srv *api.Server
	if cfg.API.Listen != "" {
		srv = api.NewServer(api.Config{
			Listen:    cfg.API.Listen,
			JWTSecret: cfg.API.JWTSecret,
		}, node, tracker, mx.Handler())

		go func() {
			log.Info().Str("listen", cfg.API.Listen).Msg("api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("api server stopped")
			}
		}()
	}

	notify(daemon.SdNotifyReady)
	go watchdog(ctx)

	<-ctx.Done()
	log.Info().Msg("shutting down")
	notify(daemon.SdNotifyStopping)

	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Warn().Err(err).Msg("api shutdown")
		}
		cancel()
	}

	wg.Wait()
	log.Info().Msg("stopped")
	return nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug().Err(err).Str("state", state).Msg("sd_notify failed")
	}
}

// watchdog pings systemd at half the configured interval. No-op outside systemd.
func watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			notify(daemon.SdNotifyWatchdog)
		}
	}
}
