// Package platform holds the OS integrations: login item, notifications and
// the macOS activation policy.
package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"
	"github.com/rs/zerolog"
)

// LoginItemName is the OS login entry created for run_at_startup
const LoginItemName = "prayer-reminder"

// LoginItem toggles launching the app at login
type LoginItem struct {
	app *autostart.App
	log zerolog.Logger
}

// NewLoginItem creates the login entry for the running executable with args
func NewLoginItem(logger zerolog.Logger, args ...string) (*LoginItem, error) {
	// Get the executable path
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}

	// Resolve symlinks if any
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable: %w", err)
	}

	return &LoginItem{
		app: &autostart.App{
			Name:        LoginItemName,
			DisplayName: "Prayer Reminder",
			Exec:        append([]string{execPath}, args...),
		},
		log: logger,
	}, nil
}

// Apply enables or disables the login entry. It does nothing if the entry
// is already in the requested state.
func (l *LoginItem) Apply(enable bool) error {
	if enable == l.app.IsEnabled() {
		return nil
	}

	if enable {
		if err := l.app.Enable(); err != nil {
			return fmt.Errorf("failed to enable autostart: %w", err)
		}
		l.log.Info().Msg("Autostart enabled")
		return nil
	}

	if err := l.app.Disable(); err != nil {
		return fmt.Errorf("failed to disable autostart: %w", err)
	}
	l.log.Info().Msg("Autostart disabled")
	return nil
}
