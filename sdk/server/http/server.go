// Package http serves a local status page for a running room session.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second
	defaultReadTimeout      = 5 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type StateSource interface {
	State() *state.State
}

type GenericResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Status is the public view of a snapshot.
type Status struct {
	Connection       model.ConnectionStatus     `json:"connection"`
	Signaling        model.SignalStatus         `json:"signaling"`
	RTC              model.RTCStatus            `json:"rtc"`
	LocalParticipant model.LocalParticipant     `json:"localParticipant"`
	Participants     []model.RemoteParticipant  `json:"participants"`
	Waiting          []model.WaitingParticipant `json:"waiting"`
	Screenshares     []model.Screenshare        `json:"screenshares"`
	ChatMessages     int                        `json:"chatMessages"`
	CloudRecording   model.CloudRecordingStatus `json:"cloudRecording"`
	Streaming        model.StreamingStatus      `json:"streaming"`
	WakeLock         model.WakeLockStatus       `json:"wakeLock"`
	Error            string                     `json:"error,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	src    StateSource
	*http.Server
}

type Config struct {
	Logger     *zerolog.Logger
	State      StateSource
	Gatherer   prometheus.Gatherer
	ListenAddr string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "status-server").Logger(),
		src:    cfg.State,
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /state", srv.getState)
	r.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv.Server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: defaultReadTimeout,
	}
	return srv
}

// StatusOf flattens a snapshot for the status page.
func StatusOf(s *state.State) Status {
	st := Status{
		Connection:       s.Status(),
		Signaling:        s.Signaling.Status,
		RTC:              s.RTC.Status,
		LocalParticipant: *s.LocalParticipant,
		Participants:     s.Remote.Participants,
		Waiting:          s.Waiting.Participants,
		Screenshares:     s.Screenshares.Items,
		ChatMessages:     len(s.Chat.Messages),
		CloudRecording:   s.CloudRecording.Status,
		Streaming:        s.Streaming.Status,
		WakeLock:         s.WakeLock.Status,
	}
	if s.Connection.Err != nil {
		st.Error = s.Connection.Err.Error()
	}
	return st
}

func (srv *Server) getState(w http.ResponseWriter, _ *http.Request) {
	b, err := json.Marshal(&GenericResponse{Data: StatusOf(srv.src.State())})
	if err != nil {
		srv.logger.Error().Err(err).Msg("unable to encode state")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	srv.writeBytes(w, http.StatusOK, b)
}

func (srv *Server) writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		srv.logger.Warn().Err(err).Msg("failed to write response")
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error, 1)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
