package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"github.com/borgmon/prayer-reminder/pkg/app"
	"github.com/borgmon/prayer-reminder/pkg/audio"
	"github.com/borgmon/prayer-reminder/pkg/logging"
	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/borgmon/prayer-reminder/pkg/mqttbridge"
	"github.com/borgmon/prayer-reminder/pkg/notify"
	"github.com/borgmon/prayer-reminder/pkg/platform"
	"github.com/borgmon/prayer-reminder/pkg/reminder"
	"github.com/borgmon/prayer-reminder/pkg/rpc"
	"github.com/borgmon/prayer-reminder/pkg/store"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func runAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	log := rt.log
	headless := c.Bool("headless")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ledger reminder.Ledger
	db, err := store.OpenLedger(rt.cfg.LedgerPath())
	if err != nil {
		log.Warn().Err(err).Msg("Ledger unavailable, fired reminders will not survive a restart")
	} else {
		defer db.Close()
		ledger = db
	}

	var (
		fyneApp  fyne.App
		notifier notify.Notifier
	)
	if headless {
		notifier = platform.NewLogNotifier(logging.Component(log, "notify"))
	} else {
		fyneApp = fyneapp.NewWithID("com.borgmon.prayer-reminder")
		notifier = platform.NewFyneNotifier(fyneApp)
	}

	var autostart app.Autostarter
	if item, err := platform.NewLoginItem(logging.Component(log, "autostart"), "run"); err != nil {
		log.Warn().Err(err).Msg("Autostart unavailable")
	} else {
		autostart = item
		// Sync the login item with settings on startup
		if err := item.Apply(rt.settings.Get().RunAtStartup); err != nil {
			log.Warn().Err(err).Msg("Failed to setup autostart")
		}
	}

	player := audio.NewController(audio.NewOtoOutput(logging.Component(log, "audio")), rt.fs, rt.cfg.AdhanFile, log)

	a := app.New(app.Options{
		Store:        rt.settings,
		Provider:     rt.provider(),
		Resolver:     rt.resolver(),
		Notifier:     notifier,
		Audio:        player,
		Ledger:       ledger,
		Autostart:    autostart,
		TickInterval: rt.cfg.TickInterval,
		Lead:         rt.cfg.ReminderLead,
		Grace:        rt.cfg.GraceWindow,
		FetchTimeout: rt.cfg.FetchTimeout,
		MarkerTTL:    rt.cfg.MarkerTTL,
		Logger:       log,
	})
	bus := a.Bus()
	defer bus.Close()

	g, gctx := errgroup.WithContext(ctx)

	if rt.cfg.RPCAddr != "" {
		server := rpc.NewServer(a, bus, rt.cfg.RPCToken, log)
		defer server.Close()

		httpServer := &http.Server{
			Addr:              rt.cfg.RPCAddr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", rt.cfg.RPCAddr).Msg("RPC server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("rpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if rt.cfg.MQTTBroker != "" {
		client, err := mqttbridge.Connect(rt.cfg.MQTTBroker, log)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT bridge disabled")
		} else {
			bridge := mqttbridge.New(client, bus, rt.cfg.MQTTTopic, log)
			defer mqttbridge.Disconnect(client)
			defer bridge.Close()
		}
	}

	if err := a.Start(gctx); err != nil {
		stop()
		_ = g.Wait()
		return errors.Join(err, a.Close())
	}
	log.Info().Str("location", rt.settings.Get().Location).Bool("headless", headless).Msg("Prayer reminder started")

	if headless {
		<-gctx.Done()
	} else {
		menu := newTray(fyneApp, a, log)
		menu.start()
		defer menu.close()

		go func() {
			<-gctx.Done()
			fyne.Do(fyneApp.Quit)
		}()
		fyneApp.Lifecycle().SetOnStarted(platform.SetActivationPolicy)
		fyneApp.Run()
	}

	log.Info().Msg("Shutting down")
	stop()
	closeErr := a.Close()
	return errors.Join(g.Wait(), closeErr)
}

func timesAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}

	loc := rt.settings.Get().Location
	if arg := c.Args().First(); arg != "" {
		loc = arg
	}

	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.FetchTimeout)
	defer cancel()

	times, err := rt.provider().Fetch(ctx, loc, time.Now())
	if err != nil {
		return err
	}

	settings := rt.settings.Get()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", loc, time.Now().Format("Mon 02 Jan 2006"))
	for _, pt := range times {
		mark := ""
		if !settings.IsEnabled(pt.Name) {
			mark = "(off)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", pt.Name, pt.Time, mark)
	}
	return w.Flush()
}

func infoAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.FetchTimeout)
	defer cancel()

	info, err := rt.resolver().Resolve(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Location: %s\nTimezone: %s\n", info.Location, info.Timezone)
	return nil
}

func testSoundAction(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	player := audio.NewController(audio.NewOtoOutput(logging.Component(rt.log, "audio")), rt.fs, rt.cfg.AdhanFile, rt.log)
	if err := player.Play(); err != nil {
		return err
	}
	defer player.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if player.State() == models.PlaybackIdle {
				return nil
			}
		}
	}
}
