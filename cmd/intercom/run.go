package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/intercom/internal/adapters/auth"
	router "github.com/dkeye/intercom/internal/adapters/http"
	"github.com/dkeye/intercom/internal/adapters/netwatch"
	"github.com/dkeye/intercom/internal/adapters/rtc"
	ctlsignal "github.com/dkeye/intercom/internal/adapters/signal"
	"github.com/dkeye/intercom/internal/app"
	"github.com/dkeye/intercom/internal/config"
	"github.com/dkeye/intercom/internal/core"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the control plane and serve the local status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(cfg.Level())
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("url", "", "control-plane WebSocket url")
	f.String("reauth-url", "", "credential refresh endpoint")
	f.Bool("kiosk", false, "retry the control connection forever")
	f.String("username", "", "default username for joined calls")
	f.String("status-addr", "", "listen address of the local status API")
	_ = v.BindPFlag("control_url", f.Lookup("url"))
	_ = v.BindPFlag("reauth_url", f.Lookup("reauth-url"))
	_ = v.BindPFlag("kiosk", f.Lookup("kiosk"))
	_ = v.BindPFlag("username", f.Lookup("username"))
	_ = v.BindPFlag("status_addr", f.Lookup("status-addr"))
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus := app.NewEventBus(cfg.EventBuffer)
	client := ctlsignal.NewClient(
		ctlsignal.WithHandshakeTimeout(cfg.HandshakeTimeout),
		ctlsignal.WithWriteTimeout(cfg.WriteTimeout),
	)
	watcher := netwatch.New(
		netwatch.TCPProbe(cfg.ProbeAddr, cfg.HandshakeTimeout),
		netwatch.WithInterval(cfg.ProbeInterval),
	)

	var refresher core.Refresher
	if cfg.ReauthURL != "" {
		refresher = auth.NewHTTPRefresher(cfg.ReauthURL)
	}

	sess := app.NewSession(client, refresher, bus, app.SessionConfig{
		Kiosk:          cfg.Kiosk,
		ReauthInterval: cfg.ReauthInterval,
		Online:         watcher,
	})
	client.OnOpen(sess.HandleOpen)
	client.OnClose(sess.HandleClose)
	client.OnConflict(sess.HandleConflict)
	client.OnMessage(func(env ctlsignal.Envelope) {
		log.Debug().Str("module", "main").Str("type", env.Type).Msg("control message")
	})

	media := rtc.NewManager(rtc.DefaultWebRTCConfig(), sess)
	srv := &http.Server{
		Addr:    cfg.StatusAddr,
		Handler: router.SetupRouter(cfg, sess, media),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.StatusAddr).Msg("status API started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return drainEvents(gctx, bus) })

	if refresher != nil {
		teardown := sess.SetupTokenRefresh()
		defer teardown()
	} else {
		log.Warn().Msg("no reauth_url configured, token refresh disabled")
	}
	if cfg.ControlURL != "" {
		sess.Connect(cfg.ControlURL)
	} else {
		log.Warn().Msg("no control_url configured, waiting for an explicit reconnect")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		media.CloseAll()
		sess.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	err := g.Wait()
	log.Info().Msg("intercom exited gracefully")
	return err
}

// drainEvents is the presentation side of the error channel.
func drainEvents(ctx context.Context, bus *app.EventBus) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-bus.Events():
			if ev.Payload.Error == nil {
				log.Info().Str("module", "main").Msg("error cleared")
				continue
			}
			log.Warn().Str("module", "main").Str("kind", string(ev.Kind)).Err(ev.Payload.Error).Msg("error surfaced")
		}
	}
}
