package main

import (
	"context"
	"encoding/json"
	"github.com/pkg/errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/cbegin/musicclock-go"
	"github.com/cbegin/musicclock-go/internal/songmap"
)

var (
	serveAddr    string
	serveOrigins []string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8750", "listen address")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allow-origin", []string{"*"}, "CORS allowed origins")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Play and expose the clock over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		maps, err := loadSongMaps()
		if err != nil {
			return err
		}
		pl, err := newPlayer(maps, true)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, pl)
	},
}

func serve(ctx context.Context, pl *musicclock.Player) error {
	if err := pl.Play(); err != nil {
		return err
	}
	defer func() {
		if err := pl.Stop(); err != nil {
			logger.Warn("stop output", "err", err)
		}
	}()

	sched := musicclock.NewScheduler(logger)
	sched.Register(pl.Clock())
	go func() { _ = sched.Run(ctx, cfg.FrameInterval()) }()

	s := newServer(pl, loadSongMaps, logger)
	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           cors.New(cors.Options{AllowedOrigins: serveOrigins, AllowedMethods: []string{http.MethodGet, http.MethodPost}}).Handler(s.router()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving clock", "addr", serveAddr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type server struct {
	pl       *musicclock.Player
	loadMaps func() (*songmap.SongMaps, error)
	debounce func(func())
	logger   *slog.Logger
}

func newServer(pl *musicclock.Player, loadMaps func() (*songmap.SongMaps, error), logger *slog.Logger) *server {
	return &server{
		pl:       pl,
		loadMaps: loadMaps,
		debounce: debounce.New(250 * time.Millisecond),
		logger:   logger,
	}
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/clock", s.handleClock).Methods(http.MethodGet)
	r.HandleFunc("/clock/{timebase}", s.handleTimebase).Methods(http.MethodGet)
	r.HandleFunc("/seek", s.handleSeek).Methods(http.MethodPost)
	r.HandleFunc("/play", s.handlePlay).Methods(http.MethodPost)
	r.HandleFunc("/pause", s.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/maps/reload", s.handleReload).Methods(http.MethodPost)
	return r
}

type clockResponse struct {
	Transport   string                 `json:"transport"`
	Tick        int                    `json:"tick"`
	Diagnostics musicclock.Diagnostics `json:"diagnostics"`
	Timebases   []musicclock.Snapshot  `json:"timebases"`
}

func (s *server) handleClock(w http.ResponseWriter, r *http.Request) {
	c := s.pl.Clock()
	resp := clockResponse{
		Transport:   s.pl.TransportState().String(),
		Tick:        s.pl.CurrentTick(),
		Diagnostics: c.Diagnostics(),
	}
	for tb := musicclock.Timebase(0); tb < musicclock.NumTimebases; tb++ {
		resp.Timebases = append(resp.Timebases, c.Snapshot(tb))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleTimebase(w http.ResponseWriter, r *http.Request) {
	tb, err := musicclock.ParseTimebase(mux.Vars(r)["timebase"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.pl.Clock().Snapshot(tb))
}

func (s *server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tick *int `json:"tick"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Tick == nil || *req.Tick < 0 {
		http.Error(w, "tick must be a non-negative integer", http.StatusBadRequest)
		return
	}
	s.pl.Seek(*req.Tick)
	s.logger.Debug("seek requested", "tick", *req.Tick)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.pl.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.pl.Pause()
	w.WriteHeader(http.StatusNoContent)
}

// handleReload coalesces bursts of reload requests, for editors that save
// a file several times in a row.
func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.debounce(s.reloadMaps)
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) reloadMaps() {
	maps, err := s.loadMaps()
	if err != nil {
		s.logger.Error("reload song maps", "err", err)
		return
	}
	s.pl.SetSongMaps(maps)
	s.logger.Info("song maps reloaded", "lengthTicks", maps.LengthTicks())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encode response", "err", err)
	}
}
