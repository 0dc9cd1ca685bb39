// Package serve implements the serve command, which runs the acquisition
// loop and every consumer of its spectra until the process is signalled.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/maia-sdr/spectrometerd/internal/api"
	"github.com/maia-sdr/spectrometerd/internal/broadcast"
	"github.com/maia-sdr/spectrometerd/internal/buildinfo"
	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/errors"
	"github.com/maia-sdr/spectrometerd/internal/frontend"
	"github.com/maia-sdr/spectrometerd/internal/ipcore"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	"github.com/maia-sdr/spectrometerd/internal/mqtt"
	"github.com/maia-sdr/spectrometerd/internal/observability"
	"github.com/maia-sdr/spectrometerd/internal/recorder"
	"github.com/maia-sdr/spectrometerd/internal/spectrometer"
	"github.com/maia-sdr/spectrometerd/internal/telemetry"
)

const (
	sentryFlushTimeout = 2 * time.Second
	mqttRetryInitial   = time.Second
	mqttRetryMax       = time.Minute
)

// Command creates the serve command. load is called once flags are parsed.
func Command(load func() (*conf.Settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the spectrometer daemon",
		Long:  "Stream spectra from the IP core to WebSocket clients, MQTT and the recorder, and serve the control API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := load()
			if err != nil {
				return err
			}
			// an unset exponent keeps the value already in the core
			if cmd.Flags().Changed("integrations-exp") {
				exp, _ := cmd.Flags().GetInt("integrations-exp")
				settings.Spectrometer.IntegrationsExp = &exp
			}
			return Run(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags defines the serve flags and binds them to their config keys.
func setupFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	f.String("mode", conf.HardwareModeUIO, "Hardware access mode: uio or sim")
	f.String("listen", conf.DefaultWebListen, "Listen address of the control API")
	f.String("metrics-listen", conf.DefaultMetricsListen, "Listen address of the Prometheus endpoint")
	f.Int("integrations-exp", 0, "Integrations exponent applied at startup")

	bindings := map[string]string{
		"hardware.mode":               "mode",
		"webserver.listen":            "listen",
		"telemetry.prometheus.listen": "metrics-listen",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, f.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Run starts all components and blocks until ctx is done, a signal arrives
// or a component fails. A failed interrupt source stops everything.
func Run(ctx context.Context, settings *conf.Settings) error {
	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(centralLogger)
	defer func() { _ = centralLogger.Close() }()

	log := logger.Global().Module("main")
	info := buildinfo.New()
	log.Info("Starting spectrometerd",
		logger.String("version", info.Version),
		logger.String("instance_id", info.InstanceID),
		logger.String("mode", settings.Hardware.Mode))

	if err := telemetry.InitSentry(settings, info); err != nil {
		log.Warn("Error reporting disabled", logger.Error(err))
	}
	defer telemetry.Shutdown(sentryFlushTimeout)

	m, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hw, err := openHardware(settings, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Warn("Error closing hardware", logger.Error(err))
		}
	}()

	if exp := settings.Spectrometer.IntegrationsExp; exp != nil {
		if *exp < 0 || *exp > int(ipcore.MaxIntegrationsExp) {
			return errors.Newf("integrations exponent %d out of range [0, %d]", *exp, ipcore.MaxIntegrationsExp).
				Component("serve").
				Category(errors.CategoryValidation).
				Build()
		}
		if err := hw.core.SetIntegrationsExp(uint8(*exp)); err != nil {
			return err
		}
	}

	// The simulator knows its own rate, front-end settings apply to hardware.
	fe := settings.Frontend
	if hw.sampleRate != nil {
		fe.Source = ""
	}
	sampleRate, err := frontend.FromSettings(&fe, hw.sampleRate)
	if err != nil {
		return err
	}

	specConfig := spectrometer.NewConfig()
	if rate, err := sampleRate.SampleRate(ctx); err == nil {
		specConfig.SetSampleRate(float32(rate))
	} else {
		log.Warn("Sample rate unknown until the first status read", logger.Error(err))
	}

	overflow, err := spectrometer.ParseOverflowPolicy(settings.Spectrometer.Overflow)
	if err != nil {
		return err
	}

	channel := broadcast.New[[]byte](settings.Spectrometer.ChannelCapacity)
	spec := spectrometer.New(hw.core, hw.interrupt, specConfig, channel, spectrometer.Options{
		Decoder:        spectrometer.Decoder{Overflow: overflow},
		DecodeUnlocked: settings.Spectrometer.DecodeUnlocked,
		Metrics:        m.Spectrometer,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// consumers end once the channel is closed and drained
		defer channel.Close()
		return spec.Run(gctx)
	})

	if hw.run != nil {
		g.Go(func() error { return hw.run(gctx) })
	}

	if settings.WebServer.Enabled {
		server, err := api.New(api.ConfigFromSettings(settings), hw.core, specConfig, sampleRate, channel,
			api.WithStreamMetrics(m.Stream),
			api.WithBuildInfo(info))
		if err != nil {
			return err
		}
		g.Go(func() error { return server.Run(gctx) })
	}

	if settings.Telemetry.Prometheus.Enabled {
		endpoint, err := observability.NewEndpoint(settings, m)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings)
		client := mqtt.NewClient(cfg, m.MQTT)
		forwarder := mqtt.NewForwarder(client, channel, cfg, m.Stream)

		g.Go(func() error {
			// a cancelled retry is a normal shutdown
			_ = mqtt.ConnectWithRetry(gctx, client, mqttRetryInitial, mqttRetryMax)
			return nil
		})
		g.Go(func() error {
			defer client.Disconnect()
			return forwarder.Run(gctx)
		})
	}

	if settings.Recorder.Enabled {
		rec := recorder.New(channel, &settings.Recorder, m.Stream)
		g.Go(func() error { return rec.Run(gctx) })
	}

	err = g.Wait()
	switch {
	case err == nil:
		log.Info("spectrometerd stopped")
	case spectrometer.IsInterruptFailure(err):
		log.Error("Interrupt source failed, shutting down", logger.Error(err))
	default:
		log.Error("spectrometerd stopped with error",
			logger.Error(err),
			logger.String("category", string(errors.CategoryOf(err))))
	}
	return err
}
