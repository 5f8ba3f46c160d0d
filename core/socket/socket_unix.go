//go:build linux || darwin || freebsd

package socket

import (
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

type fdConn struct {
	fd     int
	remote net.Addr
}

func (c *fdConn) Fd() int { return c.fd }

func (c *fdConn) RemoteAddr() net.Addr { return c.remote }

func (c *fdConn) Read(p []byte) (int, error) {
	if c.fd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Read(c.fd, p)
	if err != nil {
		if temporary(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *fdConn) Write(p []byte) (int, error) {
	if c.fd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Write(c.fd, p)
	if err != nil {
		if temporary(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func (c *fdConn) Close() error {
	if c.fd < 0 {
		return ErrClosed
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

type fdListener struct {
	fd   int
	addr net.Addr
}

// Listen binds a non-blocking TCP listener to addr ("host:port"). A zero
// backlog selects DefaultBacklog.
func Listen(addr string, backlog int) (Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	family, sa := sockaddr(tcpAddr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (Listener, error) {
		unix.Close(fd)
		return nil, fmt.Errorf("%s %s: %w", op, addr, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if family == unix.AF_INET6 {
		// Dual stack when bound to the unspecified address.
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set nonblock", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}

	return &fdListener{fd: fd, addr: toAddr(bound)}, nil
}

func (l *fdListener) Fd() int { return l.fd }

func (l *fdListener) Addr() net.Addr { return l.addr }

func (l *fdListener) Accept() (Conn, error) {
	if l.fd < 0 {
		return nil, ErrClosed
	}
	nfd, sa, err := unix.Accept(l.fd)
	if err != nil {
		// A connection reset before we got to it is as good as none pending.
		if temporary(err) || err == unix.ECONNABORTED {
			return nil, ErrWouldBlock
		}
		return nil, err
	}
	unix.CloseOnExec(nfd)

	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, err
	}

	// TCP_NODELAY: responses are written in one go, Nagle only adds latency.
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	return &fdConn{fd: nfd, remote: toAddr(sa)}, nil
}

func (l *fdListener) Close() error {
	if l.fd < 0 {
		return ErrClosed
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}

func temporary(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return unix.AF_INET, sa
	}

	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return unix.AF_INET6, sa
}

func toAddr(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	}
	return nil
}
