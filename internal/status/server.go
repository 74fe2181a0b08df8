package status

import (
	"errors"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"bootchartd/internal/detector"
)

// Health service names, one per detector milestone. Each starts NOT_SERVING
// and turns SERVING once the milestone is reached.
const (
	ServiceProcFS   = "bootchartd.procfs"
	ServiceSession  = "bootchartd.session"
	ServiceDetector = "bootchartd.detector"
)

// Services lists the milestones in the order they are reached.
var Services = []string{ServiceProcFS, ServiceSession, ServiceDetector}

// Server serves the health service for one waiting detector.
type Server struct {
	ln         net.Listener
	gs         *grpc.Server
	health     *health.Server
	runtimeDir string
	path       string
	log        zerolog.Logger
	closeOnce  sync.Once
	closeErr   error
}

// ErrDetectorRunning means another detector already owns the socket.
var ErrDetectorRunning = errors.New("a boot completion detector is already waiting")

// Listen binds the detector socket, records the PID file and starts serving.
func Listen(runtimeDir string, logger zerolog.Logger) (*Server, error) {
	if err := ensureDir(runtimeDir); err != nil {
		return nil, err
	}
	path := SocketPath(runtimeDir)

	if _, err := os.Stat(path); err == nil {
		if IsRunning(runtimeDir) {
			return nil, ErrDetectorRunning
		}
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, err
	}

	hs := health.NewServer()
	for _, svc := range Services {
		hs.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{ln: ln, gs: gs, health: hs, runtimeDir: runtimeDir, path: path, log: logger}
	if err := WritePID(runtimeDir, os.Getpid()); err != nil {
		s.Close()
		return nil, err
	}
	go func() {
		if err := gs.Serve(ln); err != nil {
			logger.Debug().Err(err).Msg("status server stopped")
		}
	}()
	logger.Debug().Str("socket", path).Msg("status server listening")
	return s, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// SetState publishes a detector state.
func (s *Server) SetState(st detector.State) {
	switch st {
	case detector.StateWaitingForSession:
		s.set(ServiceProcFS)
	case detector.StateDone:
		s.set(ServiceProcFS, ServiceSession, ServiceDetector)
	}
}

// SessionObserved marks the session milestone while the settle delay runs.
func (s *Server) SessionObserved() {
	s.set(ServiceProcFS, ServiceSession)
}

func (s *Server) set(services ...string) {
	for _, svc := range services {
		s.health.SetServingStatus(svc, healthpb.HealthCheckResponse_SERVING)
	}
}

// Close stops serving, unlinks the socket and removes the PID file.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.gs.Stop()
		_ = s.ln.Close()
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.closeErr = err
		}
		if err := RemovePID(s.runtimeDir); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
