// Package serviced implements the service loop: a single TCP listener
// accepting one client connection at a time, reading one frame,
// dispatching it, writing one reply frame, and closing — with model,
// recurrent state and sampling profile persisting across connections.
// Grounded on the teacher's server.go/run() accept-loop shape and its
// golang.org/x/sync/semaphore-gated concurrency discipline, narrowed
// here from "up to config.parallel sequences" to a single in-flight
// generation at a time, which is what spec.md's single-client,
// serial-accept model calls for.
package serviced

import (
	"context"
	"log/slog"
	"net"

	"golang.org/x/sync/semaphore"

	"github.com/stevenaleach/ssmsrv/internal/config"
	"github.com/stevenaleach/ssmsrv/internal/dispatch"
	"github.com/stevenaleach/ssmsrv/internal/frame"
	"github.com/stevenaleach/ssmsrv/internal/modelrt"
	"github.com/stevenaleach/ssmsrv/internal/sampling"
	"github.com/stevenaleach/ssmsrv/internal/snapshot"
)

// Server owns every piece of state that must survive across
// connections: the model runtime, the current recurrent-state
// snapshot, and the current sampling profile. Exclusive access during
// a turn is enforced by sem rather than a mutex, since the dispatcher
// already serializes naturally through the single-inflight semaphore
// and the accept loop only ever has one connection live at a time.
type Server struct {
	Config *config.Config
	Model  modelrt.Model
	Log    *slog.Logger

	sem     *semaphore.Weighted
	session *dispatch.Session
}

// New builds a Server around an already-loaded model, seeding its
// session with the variant's default sampling profile and any
// snapshot/profile files already present on disk at the configured
// default paths.
func New(cfg *config.Config, model modelrt.Model, log *slog.Logger) *Server {
	profile := sampling.Default(cfg.Variant)
	if p, err := sampling.Load(cfg.ProfilePath, profile); err == nil {
		profile = p
	}

	var state *snapshot.State
	if st, err := snapshot.Load(cfg.SnapshotPath); err == nil {
		state = &st
	}

	return &Server{
		Config: cfg,
		Model:  model,
		Log:    log,
		sem:    semaphore.NewWeighted(1),
		session: &dispatch.Session{
			Model:               model,
			Variant:             cfg.Variant,
			Profile:             profile,
			State:               state,
			DefaultSnapshotPath: cfg.SnapshotPath,
			DefaultProfilePath:  cfg.ProfilePath,
			MaxChars:            cfg.MaxChars,
			Log:                 log,
		},
	}
}

// Serve accepts connections from ln until ctx is canceled or Accept
// fails, handling exactly one connection at a time. A listener bind
// failure is the caller's concern (fatal, per spec); everything that
// happens after Serve is called is recoverable per-connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		s.handle(ctx, conn)
	}
}

// handle reads exactly one frame, dispatches it under the
// single-inflight semaphore, writes exactly one reply frame, then
// closes the connection. Any frame-level I/O failure just drops the
// connection; it never brings down the listener.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	r := frame.NewReader(conn)
	payload, err := r.Read()
	if err != nil {
		s.Log.Warn("frame read failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.Log.Warn("dispatch aborted", "error", err)
		return
	}
	reply := dispatch.Dispatch(ctx, s.session, string(payload))
	s.sem.Release(1)

	if err := frame.Write(conn, []byte(reply)); err != nil {
		s.Log.Warn("frame write failed", "remote", conn.RemoteAddr(), "error", err)
	}
}
