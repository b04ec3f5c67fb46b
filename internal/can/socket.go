package can

import (
	"encoding/binary"
	"net"

	"github.com/notnil/canbus"
	"github.com/openefi/ecud/internal/errors"
	"golang.org/x/sys/unix"
)

// struct can_frame from <linux/can.h>
const rawFrameSize = 16

// Socket is a raw SocketCAN FrameSource bound to one interface
type Socket struct {
	fd int
}

// DialSocket opens and binds a raw CAN socket on the named interface
func DialSocket(ifname string) (*Socket, error) {
	errFactory := errors.New()

	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrResourceMissing, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	return &Socket{fd: fd}, nil
}

// Recv reads one frame, blocking until the bus delivers it
func (s *Socket) Recv() (canbus.Frame, error) {
	errFactory := errors.New()

	buf := make([]byte, rawFrameSize)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return canbus.Frame{}, errFactory.Wrap(errors.ErrOperationFailed, err)
	}
	if n < rawFrameSize {
		return canbus.Frame{}, errFactory.WithData(errors.ErrOperationFailed, n)
	}

	frame := canbus.Frame{
		ID:  binary.LittleEndian.Uint32(buf[0:4]) & unix.CAN_EFF_MASK,
		Len: buf[4],
	}
	if frame.Len > 8 {
		frame.Len = 8
	}
	copy(frame.Data[:], buf[8:8+frame.Len])

	return frame, nil
}

// Close releases the socket. A blocked Recv returns with an error.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}
