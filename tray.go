package main

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"github.com/borgmon/prayer-reminder/pkg/app"
	"github.com/borgmon/prayer-reminder/pkg/events"
	"github.com/borgmon/prayer-reminder/pkg/logging"
	"github.com/borgmon/prayer-reminder/pkg/schedule"
	"github.com/rs/zerolog"
)

// tray keeps the system tray menu in step with today's schedule
type tray struct {
	fyne fyne.App
	app  *app.App
	sub  *events.Subscription
	done chan struct{}
	log  zerolog.Logger
}

// Picks up the first fetch and day rollovers between reminders
const trayRefreshInterval = time.Minute

func newTray(f fyne.App, a *app.App, logger zerolog.Logger) *tray {
	return &tray{fyne: f, app: a, done: make(chan struct{}), log: logging.Component(logger, "tray")}
}

func (t *tray) start() {
	t.update()
	t.sub = t.app.Bus().Subscribe(func(events.Event) {
		fyne.Do(t.update)
	}, events.TopicPrayerReminder)

	go func() {
		ticker := time.NewTicker(trayRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				fyne.Do(t.update)
			}
		}
	}()
}

func (t *tray) close() {
	if t.sub != nil {
		t.sub.Close()
	}
	close(t.done)
}

func (t *tray) update() {
	desk, ok := t.fyne.(desktop.App)
	if !ok {
		t.log.Debug().Msg("Driver has no system tray")
		return
	}

	menuItems := []*fyne.MenuItem{}

	today := t.app.Today()
	if len(today) > 0 {
		headerItem := fyne.NewMenuItem("Today:", nil)
		headerItem.Disabled = true
		menuItems = append(menuItems, headerItem)

		for _, entry := range today {
			menuItems = append(menuItems, prayerItem(entry))
		}
		menuItems = append(menuItems, fyne.NewMenuItemSeparator())
	}

	menuItems = append(menuItems,
		fyne.NewMenuItem("Refresh", func() {
			t.update()
		}),
		fyne.NewMenuItem("Test Adhan", func() {
			if err := t.app.TestAdhanSound(); err != nil {
				t.log.Error().Err(err).Msg("Failed to play adhan")
			}
		}),
		fyne.NewMenuItem("Stop Adhan", func() {
			t.app.StopAdhan()
		}),
	)

	menuItems = append(menuItems, fyne.NewMenuItemSeparator())
	menuItems = append(menuItems, fyne.NewMenuItem("Quit", func() {
		t.fyne.Quit()
	}))

	menu := fyne.NewMenu("Prayer Reminder", menuItems...)
	desk.SetSystemTrayMenu(menu)
	desk.SetSystemTrayIcon(theme.InfoIcon())
}

func prayerItem(entry schedule.Entry) *fyne.MenuItem {
	item := fyne.NewMenuItem(fmt.Sprintf("  %s - %s", entry.Name, entry.Time), nil)
	item.Disabled = true
	item.Checked = entry.Fired
	return item
}
