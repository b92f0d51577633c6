package webchat

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BackgroundTask runs alongside the HTTP server until ctx is done.
type BackgroundTask func(ctx context.Context) error

// Server couples a RoomManager with its http.Server.
type Server struct {
	rooms   *RoomManager
	httpSrv *http.Server
	tasks   []BackgroundTask
}

func NewServer(rooms *RoomManager, httpSrv *http.Server, tasks ...BackgroundTask) *Server {
	if rooms == nil {
		panic("webchat: NewServer requires non-nil room manager")
	}
	if httpSrv == nil {
		panic("webchat: NewServer requires non-nil http server")
	}
	return &Server{rooms: rooms, httpSrv: httpSrv, tasks: tasks}
}

// Run serves until SIGINT/SIGTERM or ctx cancellation, then shuts down the
// HTTP server, stops background tasks and disposes every room.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	eg, egCtx := errgroup.WithContext(ctx)
	srvCtx, srvCancel := context.WithCancel(egCtx)
	defer srvCancel()

	s.rooms.StartEvictionLoop(srvCtx)

	for _, task := range s.tasks {
		eg.Go(func() error { return task(srvCtx) })
	}

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.rooms.Close()
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("starting roomchat server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
