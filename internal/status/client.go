package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"bootchartd/internal/detector"
)

// Serving is a milestone's health status.
type Serving = healthpb.HealthCheckResponse_ServingStatus

// ErrDetectorGone means the detector went away before finishing.
var ErrDetectorGone = errors.New("boot completion detector exited")

// Report is a snapshot of the detector milestones.
type Report struct {
	Services map[string]Serving
}

// State maps the milestones back to a detector state.
func (r Report) State() detector.State {
	switch {
	case r.Services[ServiceDetector] == healthpb.HealthCheckResponse_SERVING:
		return detector.StateDone
	case r.Services[ServiceProcFS] == healthpb.HealthCheckResponse_SERVING:
		return detector.StateWaitingForSession
	default:
		return detector.StateWaitingForProcFS
	}
}

// SessionObserved reports whether a wait-set process has been seen.
func (r Report) SessionObserved() bool {
	return r.Services[ServiceSession] == healthpb.HealthCheckResponse_SERVING
}

func (r Report) clone() Report {
	out := Report{Services: make(map[string]Serving, len(r.Services))}
	for k, v := range r.Services {
		out.Services[k] = v
	}
	return out
}

// Client talks to a waiting detector.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial opens a gRPC connection to the detector socket.
func Dial(ctx context.Context, runtimeDir string) (*Client, error) {
	path := SocketPath(runtimeDir)
	conn, err := grpc.NewClient(
		"passthrough:///"+path,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		}),
	)
	if err != nil {
		return nil, err
	}
	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		switch state := conn.GetState(); state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection is shut down")
		default:
			if !conn.WaitForStateChange(ctx, state) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("grpc connection stuck in state %s", state.String())
			}
		}
	}
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Report checks every milestone once.
func (c *Client) Report(ctx context.Context) (Report, error) {
	rep := Report{Services: make(map[string]Serving, len(Services))}
	for _, svc := range Services {
		resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
		if err != nil {
			return rep, fmt.Errorf("check %s: %w", svc, err)
		}
		rep.Services[svc] = resp.GetStatus()
	}
	return rep, nil
}

var errFinished = errors.New("detector finished")

// Watch streams milestone changes to fn until the detector reports DONE,
// which returns nil. fn is never called concurrently.
func (c *Client) Watch(ctx context.Context, fn func(Report)) error {
	var mu sync.Mutex
	rep := Report{Services: make(map[string]Serving, len(Services))}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range Services {
		g.Go(func() error {
			stream, err := c.health.Watch(gctx, &healthpb.HealthCheckRequest{Service: svc})
			if err != nil {
				return err
			}
			for {
				resp, err := stream.Recv()
				if err != nil {
					return err
				}
				mu.Lock()
				rep.Services[svc] = resp.GetStatus()
				fn(rep.clone())
				mu.Unlock()
				if svc == ServiceDetector && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
					return errFinished
				}
			}
		})
	}

	err := g.Wait()
	switch {
	case errors.Is(err, errFinished):
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrDetectorGone, err)
}

// IsRunning reports whether a detector answers on the socket.
func IsRunning(runtimeDir string) bool {
	if _, err := os.Stat(SocketPath(runtimeDir)); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	c, err := Dial(ctx, runtimeDir)
	if err != nil {
		return false
	}
	defer c.Close()

	_, err = c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceDetector})
	return err == nil
}
