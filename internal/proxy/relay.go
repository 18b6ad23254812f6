package proxy

import (
	"errors"
	"io"
	"net"

	"github.com/sourcegraph/conc"
)

type closeWriter interface {
	CloseWrite() error
}

// relay copies bytes between client and the upstream until both sides
// finish. Each direction half-closes its destination on EOF so the peer
// sees the end of stream.
func (l *Launcher) relay(client net.Conn) {
	upstream, err := net.DialTimeout("tcp", l.cfg.Upstream, l.cfg.DialTimeout)
	if err != nil {
		l.logger.Warn("proxy upstream dial failed",
			"upstream", l.cfg.Upstream,
			"client", client.RemoteAddr().String(),
			"error", err.Error())
		return
	}
	if !l.track(upstream) {
		_ = upstream.Close()
		return
	}
	defer l.untrack(upstream)

	var wg conc.WaitGroup
	var sent, received int64
	wg.Go(func() { sent = pipe(upstream, client) })
	wg.Go(func() { received = pipe(client, upstream) })
	wg.Wait()

	l.logger.Debug("proxy connection closed",
		"client", client.RemoteAddr().String(),
		"bytes_sent", sent,
		"bytes_received", received)
}

func pipe(dst, src net.Conn) int64 {
	n, err := io.Copy(dst, src)
	if cw, ok := dst.(closeWriter); ok && err == nil {
		_ = cw.CloseWrite()
	} else {
		_ = dst.Close()
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		_ = src.Close()
	}
	return n
}
