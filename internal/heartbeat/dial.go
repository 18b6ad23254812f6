package heartbeat

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/Iron-Ham/pairlink/internal/logging"
	"github.com/Iron-Ham/pairlink/internal/pairing"
)

// DefaultDialTimeout bounds a dial when DialService.Timeout is zero.
const DefaultDialTimeout = 5 * time.Second

// Dialer opens network connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialService is the default Service. It checks the credential names a host
// and then opens a TCP connection to the host through the tunnel. A
// connection that opens counts as a heartbeat.
type DialService struct {
	Address        string
	Timeout        time.Duration
	ExpectedHostID string
	Dialer         Dialer
	Logger         *logging.Logger
}

// Heartbeat implements Service.
func (d *DialService) Heartbeat(ctx context.Context, cred pairing.Credential) Result {
	logger := d.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithComponent("heartbeat")

	if !cred.HasHostID() {
		return Failure(CodeInvalidHostID, "pairing credential has no HostID")
	}
	if d.ExpectedHostID != "" && cred.HostID != d.ExpectedHostID {
		logger.Warn("credential paired with a different host",
			"host_id", cred.HostID,
			"expected_host_id", d.ExpectedHostID)
		return Failure(CodeInvalidHostID, "pairing credential belongs to another host")
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := dialer.DialContext(dialCtx, "tcp", d.Address)
	if err != nil {
		if ctx.Err() != nil {
			return Failure(CodeCanceled, ctx.Err().Error())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Debug("heartbeat dial timed out", "addr", d.Address, "timeout", timeout.String())
		}
		return Failure(CodeNoRoute, err.Error())
	}
	_ = conn.Close()

	logger.Debug("heartbeat answered",
		"addr", d.Address,
		"host_id", cred.HostID,
		"latency_ms", time.Since(start).Milliseconds())
	return Success()
}
