package heartbeat

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Iron-Ham/pairlink/internal/pairing"
)

func TestDialService_MissingHostID(t *testing.T) {
	svc := &DialService{Address: "127.0.0.1:1"}

	r := svc.Heartbeat(context.Background(), pairing.Credential{})
	if r.Code != CodeInvalidHostID {
		t.Errorf("code = %d, want %d", r.Code, CodeInvalidHostID)
	}
}

func TestDialService_HostIDMismatch(t *testing.T) {
	svc := &DialService{Address: "127.0.0.1:1", ExpectedHostID: "EXPECTED"}

	r := svc.Heartbeat(context.Background(), pairing.Credential{HostID: "OTHER"})
	if r.Code != CodeInvalidHostID {
		t.Errorf("code = %d, want %d", r.Code, CodeInvalidHostID)
	}
}

func TestDialService_Success(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	svc := &DialService{Address: ln.Addr().String(), Timeout: time.Second, ExpectedHostID: "HOST"}
	r := svc.Heartbeat(context.Background(), pairing.Credential{HostID: "HOST"})
	if !r.OK() {
		t.Errorf("Heartbeat() = %+v, want success", r)
	}
}

func TestDialService_NoRoute(t *testing.T) {
	// Grab a free port and close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	svc := &DialService{Address: addr, Timeout: time.Second}
	r := svc.Heartbeat(context.Background(), pairing.Credential{HostID: "HOST"})
	if r.Code != CodeNoRoute {
		t.Errorf("code = %d, want %d", r.Code, CodeNoRoute)
	}
	if !r.HasMessage || r.Message == "" {
		t.Error("dial failure should carry the error text")
	}
}

type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDialService_Canceled(t *testing.T) {
	svc := &DialService{Address: "10.7.0.1:62078", Timeout: time.Minute, Dialer: blockingDialer{}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	r := svc.Heartbeat(ctx, pairing.Credential{HostID: "HOST"})
	if r.Code != CodeCanceled {
		t.Errorf("code = %d, want %d", r.Code, CodeCanceled)
	}
}

func TestDialService_Timeout(t *testing.T) {
	svc := &DialService{Address: "10.7.0.1:62078", Timeout: 10 * time.Millisecond, Dialer: blockingDialer{}}

	r := svc.Heartbeat(context.Background(), pairing.Credential{HostID: "HOST"})
	if r.Code != CodeNoRoute {
		t.Errorf("dial timeout should be reported as no route, got %d", r.Code)
	}
}
