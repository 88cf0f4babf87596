// Package rpc exposes the app's commands as JSON-RPC 2.0 over HTTP, with a
// WebSocket endpoint that also receives push events.
package rpc

import (
	"context"
	"errors"
	"net/http"

	"github.com/borgmon/prayer-reminder/pkg/app"
	"github.com/borgmon/prayer-reminder/pkg/events"
	"github.com/borgmon/prayer-reminder/pkg/logging"
	"github.com/borgmon/prayer-reminder/pkg/models"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/rs/zerolog"
)

// JSON-RPC error codes for the error taxonomy
const (
	codeProvider      = jrpc2.Code(-32002)
	codeIO            = jrpc2.Code(-32003)
	codeNotFound      = jrpc2.Code(-32004)
	codeInvalidParams = jrpc2.Code(-32602)
)

// Commands is the command surface served over RPC
type Commands interface {
	GetSettings() (models.AppSettings, error)
	SaveSettings(settings models.AppSettings) error
	FetchPrayerTimes(ctx context.Context, location string) ([]models.PrayerTime, error)
	GetSystemInfo(ctx context.Context) (models.SystemInfo, error)
	TestAdhanSound() error
	StopAdhan()
	DetectLocation(ctx context.Context)
	Status() app.Status
}

// Server serves Commands on /rpc and push events on /events
type Server struct {
	cmds     Commands
	methods  handler.Map
	bridge   jhttp.Bridge
	token    string
	notifier *Notifier
	sub      *events.Subscription
	log      zerolog.Logger
}

// LocationParams is the input for fetch_prayer_times
type LocationParams struct {
	Location string `json:"location"`
}

// EmptyResult is a placeholder for methods that return no data
type EmptyResult struct{}

// NewServer creates the RPC server and subscribes it to bus for push
// notifications. An empty token disables authentication.
func NewServer(cmds Commands, bus *events.Bus, token string, logger zerolog.Logger) *Server {
	s := &Server{
		cmds:  cmds,
		token: token,
		log:   logging.Component(logger, "rpc"),
	}
	s.notifier = NewNotifier(s.log)

	s.methods = handler.Map{
		"get_settings":       handler.New(s.getSettings),
		"save_settings":      handler.New(s.saveSettings),
		"fetch_prayer_times": handler.New(s.fetchPrayerTimes),
		"get_system_info":    handler.New(s.getSystemInfo),
		"test_adhan_sound":   handler.New(s.testAdhanSound),
		"stop_adhan":         handler.New(s.stopAdhan),
		"detect_location":    handler.New(s.detectLocation),
		"get_status":         handler.New(s.getStatus),
	}
	s.bridge = jhttp.NewBridge(s.methods, nil)

	if bus != nil {
		s.sub = bus.Subscribe(s.forward, events.TopicPrayerReminder, events.TopicPlayAdhan)
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /rpc", requireToken(s.token, s.bridge))
	mux.Handle("GET /events", requireToken(s.token, http.HandlerFunc(s.handleWS)))
	return mux
}

// Close stops push forwarding and shuts down the jrpc2 bridge
func (s *Server) Close() error {
	if s.sub != nil {
		s.sub.Close()
	}
	return s.bridge.Close()
}

// forward relays bus events to connected WebSocket clients
func (s *Server) forward(ev events.Event) {
	params := ev.Payload
	if params == nil {
		params = EmptyResult{}
	}
	s.notifier.Broadcast(ev.Topic, params)
}

func (s *Server) getSettings(_ context.Context) (*models.AppSettings, error) {
	settings, err := s.cmds.GetSettings()
	if err != nil {
		return nil, toRPCError(err)
	}
	return &settings, nil
}

func (s *Server) saveSettings(_ context.Context, p *models.AppSettings) (*EmptyResult, error) {
	if p == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing settings"}
	}
	for _, name := range p.EnabledPrayers {
		if !models.IsPrayerName(name) {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "unknown prayer: " + name}
		}
	}
	if err := s.cmds.SaveSettings(*p); err != nil {
		return nil, toRPCError(err)
	}
	return &EmptyResult{}, nil
}

func (s *Server) fetchPrayerTimes(ctx context.Context, p *LocationParams) ([]models.PrayerTime, error) {
	if p == nil || p.Location == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: location"}
	}
	times, err := s.cmds.FetchPrayerTimes(ctx, p.Location)
	if err != nil {
		return nil, toRPCError(err)
	}
	return times, nil
}

func (s *Server) getSystemInfo(ctx context.Context) (*models.SystemInfo, error) {
	info, err := s.cmds.GetSystemInfo(ctx)
	if err != nil {
		return nil, toRPCError(err)
	}
	return &info, nil
}

func (s *Server) testAdhanSound(_ context.Context) (*EmptyResult, error) {
	if err := s.cmds.TestAdhanSound(); err != nil {
		return nil, toRPCError(err)
	}
	return &EmptyResult{}, nil
}

func (s *Server) stopAdhan(_ context.Context) (*EmptyResult, error) {
	s.cmds.StopAdhan()
	return &EmptyResult{}, nil
}

func (s *Server) detectLocation(_ context.Context) (*EmptyResult, error) {
	// The request context ends with the call; detection outlives it
	s.cmds.DetectLocation(context.Background())
	return &EmptyResult{}, nil
}

func (s *Server) getStatus(_ context.Context) (*app.Status, error) {
	st := s.cmds.Status()
	return &st, nil
}

func toRPCError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return &jrpc2.Error{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, models.ErrProvider):
		return &jrpc2.Error{Code: codeProvider, Message: err.Error()}
	case errors.Is(err, models.ErrIO):
		return &jrpc2.Error{Code: codeIO, Message: err.Error()}
	default:
		return err
	}
}
