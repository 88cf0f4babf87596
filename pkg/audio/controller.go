// Package audio plays the adhan cue.
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/borgmon/prayer-reminder/pkg/logging"
	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Built-in cue used when no usable adhan asset is configured
const (
	toneFrequency = 880
	toneLength    = 3 * time.Second
)

// Controller owns the playback state. At most one stream is alive at a time.
type Controller struct {
	out  Output
	fs   afero.Fs
	path string
	log  zerolog.Logger

	mu     sync.Mutex
	state  models.PlaybackState
	stream Stream
	gen    uint64
}

// NewController creates a controller playing the WAV file at path from fs.
// An empty path always plays the built-in tone.
func NewController(out Output, fs afero.Fs, path string, logger zerolog.Logger) *Controller {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Controller{
		out:   out,
		fs:    fs,
		path:  path,
		log:   logging.Component(logger, "audio"),
		state: models.PlaybackIdle,
	}
}

// Play starts the adhan, preempting any sound already playing
func (c *Controller) Play() error {
	sound := c.load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	stream, err := c.out.Start(sound)
	var formatErr *FormatError
	if errors.As(err, &formatErr) {
		c.log.Warn().Err(err).Msg("Adhan format not supported by the open output, using tone")
		stream, err = c.out.Start(Tone(formatErr.Want, toneFrequency, toneLength))
	}
	if err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	c.gen++
	c.stream = stream
	c.state = models.PlaybackPlaying
	go c.watch(c.gen, stream)

	c.log.Info().Str("sound", sound.Name).Msg("Adhan playing")
	return nil
}

// Stop halts playback. It is a no-op when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		c.log.Info().Msg("Adhan stopped")
	}
	c.stopLocked()
}

// State returns the current playback state
func (c *Controller) State() models.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) stopLocked() {
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	// Invalidate the watcher of the stopped stream
	c.gen++
	c.state = models.PlaybackIdle
}

// watch returns the controller to Idle when the stream of generation gen ends
func (c *Controller) watch(gen uint64, stream Stream) {
	<-stream.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	c.stream = nil
	c.state = models.PlaybackIdle
}

// load reads the configured asset, falling back to the tone on any problem
func (c *Controller) load() Sound {
	if c.path == "" {
		return Tone(DefaultFormat, toneFrequency, toneLength)
	}

	data, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("Adhan file unavailable, using tone")
		return Tone(DefaultFormat, toneFrequency, toneLength)
	}

	format, pcm, err := parseWAV(data)
	if err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("Adhan file not playable, using tone")
		return Tone(DefaultFormat, toneFrequency, toneLength)
	}
	return Sound{Name: c.path, Format: format, PCM: pcm}
}
