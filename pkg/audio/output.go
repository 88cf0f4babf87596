package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
)

// Stream is one playing sound
type Stream interface {
	// Stop halts playback and returns once the stream is released
	Stop()
	// Done is closed when playback ends, naturally or by Stop
	Done() <-chan struct{}
}

// Output starts streams on an audio device
type Output interface {
	Start(s Sound) (Stream, error)
}

// FormatError reports a sound whose format differs from the open device
type FormatError struct {
	Want Format
	Got  Format
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("audio format %+v does not match output %+v", e.Got, e.Want)
}

// Global audio context singleton. oto allows a single context per process,
// so its format is fixed by the first sound played.
var (
	globalAudioCtx     *oto.Context
	globalAudioFormat  Format
	globalAudioErr     error
	globalAudioCtxOnce sync.Once
)

func sharedContext(format Format, log zerolog.Logger) (*oto.Context, Format, error) {
	globalAudioCtxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			globalAudioErr = fmt.Errorf("failed to initialize audio context: %w", err)
			return
		}

		// Wait for the hardware audio devices to be ready
		<-readyChan

		globalAudioCtx = ctx
		globalAudioFormat = format
		log.Info().Int("sample_rate", format.SampleRate).Int("channels", format.Channels).Msg("Audio context initialized")
	})
	return globalAudioCtx, globalAudioFormat, globalAudioErr
}

// OtoOutput plays sounds through the process-wide oto context
type OtoOutput struct {
	log zerolog.Logger
}

// NewOtoOutput returns the device output
func NewOtoOutput(logger zerolog.Logger) *OtoOutput {
	return &OtoOutput{log: logger}
}

// Start implements Output
func (o *OtoOutput) Start(s Sound) (Stream, error) {
	ctx, format, err := sharedContext(s.Format, o.log)
	if err != nil {
		return nil, err
	}
	if format != s.Format {
		return nil, &FormatError{Want: format, Got: s.Format}
	}

	st := &otoStream{
		player: ctx.NewPlayer(bytes.NewReader(s.PCM)),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	// Play starts playing the sound and returns without waiting
	st.player.Play()
	go st.run(o.log)
	return st, nil
}

type otoStream struct {
	player   *oto.Player
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (s *otoStream) run(log zerolog.Logger) {
	defer close(s.done)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for s.player.IsPlaying() {
		select {
		case <-s.stop:
			s.player.Pause()
			s.closePlayer(log)
			return
		case <-ticker.C:
		}
	}
	s.closePlayer(log)
}

func (s *otoStream) closePlayer(log zerolog.Logger) {
	if err := s.player.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close audio player")
	}
}

func (s *otoStream) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *otoStream) Done() <-chan struct{} {
	return s.done
}
