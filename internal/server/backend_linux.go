//go:build linux

package server

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/int08h/roughtimed/internal/metrics"
)

// EpollBackend is a Linux-only NetworkBackend that waits for readability
// with epoll_wait instead of the portable deadline-based poll UDPBackend
// uses, avoiding a SetReadDeadline syscall on every loop iteration.
type EpollBackend struct {
	conn      *net.UDPConn
	epollFD   int
	sockFD    int
	batchSize int
	buf       []byte
	counts    metrics.NetworkCounts
}

// NewEpollBackend wraps conn with an epoll instance registered for
// readable events. Returns the syscall error if epoll_create1 or epoll_ctl
// fails.
func NewEpollBackend(conn *net.UDPConn, batchSize int) (*EpollBackend, error) {
	sc, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var sockFD int
	if err := sc.Control(func(fd uintptr) {
		sockFD = int(fd)
	}); err != nil {
		return nil, err
	}

	epollFD, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(sockFD)}
	if err := unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, sockFD, &ev); err != nil {
		unix.Close(epollFD)
		return nil, err
	}

	return &EpollBackend{
		conn:      conn,
		epollFD:   epollFD,
		sockFD:    sockFD,
		batchSize: batchSize,
		buf:       make([]byte, recvBufferSize),
	}, nil
}

func (b *EpollBackend) CollectRequests(fn func(data []byte, addr net.Addr)) CollectResult {
	for i := 0; i < b.batchSize; i++ {
		n, addr, err := b.conn.ReadFrom(b.buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				b.counts.RecvWouldBlock++
				return Empty
			}
			b.counts.FailedRecvs++
			return MoreData
		}
		fn(b.buf[:n], addr)
	}
	return MoreData
}

func (b *EpollBackend) SendResponse(data []byte, addr net.Addr) {
	if _, err := b.conn.WriteTo(data, addr); err != nil {
		b.counts.FailedSends++
		return
	}
	b.counts.SuccessfulSends++
}

func (b *EpollBackend) Flush() {}

func (b *EpollBackend) WaitForEvents(timeout time.Duration) bool {
	events := make([]unix.EpollEvent, 1)
	n, err := unix.EpollWait(b.epollFD, events, int(timeout/time.Millisecond))
	if err != nil {
		b.counts.FailedPolls++
		return false
	}
	if n == 0 {
		return false
	}
	// Arm a short deadline so the subsequent ReadFrom in CollectRequests
	// doesn't block past this poll's readiness signal.
	_ = b.conn.SetReadDeadline(time.Now().Add(timeout))
	return true
}

func (b *EpollBackend) Metrics() metrics.NetworkCounts {
	return b.counts
}

func (b *EpollBackend) ResetMetrics() {
	b.counts = metrics.NetworkCounts{}
}

func (b *EpollBackend) Close() error {
	unix.Close(b.epollFD)
	return b.conn.Close()
}
