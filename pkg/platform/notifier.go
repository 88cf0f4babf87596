package platform

import (
	"fyne.io/fyne/v2"
	"github.com/rs/zerolog"
)

// FyneNotifier shows reminders as desktop notifications through fyne
type FyneNotifier struct {
	app fyne.App
}

// NewFyneNotifier returns a notifier for a
func NewFyneNotifier(a fyne.App) *FyneNotifier {
	return &FyneNotifier{app: a}
}

// Notify implements notify.Notifier
func (n *FyneNotifier) Notify(title, body string) error {
	notification := fyne.NewNotification(title, body)
	fyne.Do(func() {
		n.app.SendNotification(notification)
	})
	return nil
}

// LogNotifier writes reminders to the log. Used when running headless.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier returns a notifier writing to logger
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

// Notify implements notify.Notifier
func (n *LogNotifier) Notify(title, body string) error {
	n.log.Info().Str("title", title).Msg(body)
	return nil
}
