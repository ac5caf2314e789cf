// Package netmuxd registers network reachable devices with a local muxer daemon, so they show
// up in its device list next to the USB attached ones.
//
// The control protocol is a single line based frame per TCP connection:
//
//	<1|0>\n<udid>\n<service name>\n<ip>\n
//
// The daemon does not answer.
package netmuxd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jkcoxson/jitstreamer-pair/poll"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultAddress is where the muxer listens for registrations.
	DefaultAddress = "127.0.0.1:32498"
	// DefaultServiceName is sent when the real mDNS instance name of the device is unknown.
	DefaultServiceName = "12:34:56:78:90:AB@fe80::de52:85ff:fece:c422._apple-mobdev2._tcp"

	registerFlag   = "1"
	unregisterFlag = "0"
	// the daemon ignores service and ip on removal but expects four lines
	unregisterService = "your"
	unregisterIP      = "mom"

	dialTimeout = 5 * time.Second
)

// RegisterFrame returns the frame that adds udid reachable at ip.
func RegisterFrame(udid, serviceName, ip string) []byte {
	return frame(registerFlag, udid, serviceName, ip)
}

// UnregisterFrame returns the frame that removes udid.
func UnregisterFrame(udid string) []byte {
	return frame(unregisterFlag, udid, unregisterService, unregisterIP)
}

func frame(flag, udid, service, ip string) []byte {
	return []byte(fmt.Sprintf("%s\n%s\n%s\n%s\n", flag, udid, service, ip))
}

// Client sends registration frames to the muxer.
type Client struct {
	Address     string
	ServiceName string
	Policy      poll.Policy
}

// NewClient returns a Client with the default address, service name and poll policy.
func NewClient() *Client {
	return &Client{Address: DefaultAddress, ServiceName: DefaultServiceName, Policy: poll.DefaultPolicy}
}

// Register adds udid at ip to the muxer.
func (c *Client) Register(ctx context.Context, udid, ip string) error {
	return c.send(ctx, RegisterFrame(udid, c.serviceName(), ip))
}

// Unregister removes udid from the muxer.
func (c *Client) Unregister(ctx context.Context, udid string) error {
	return c.send(ctx, UnregisterFrame(udid))
}

func (c *Client) serviceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

func (c *Client) address() string {
	if c.Address == "" {
		return DefaultAddress
	}
	return c.Address
}

// send writes one frame on a fresh connection. Success means the write completed.
func (c *Client) send(ctx context.Context, frame []byte) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address())
	if err != nil {
		return fmt.Errorf("failed connecting to muxer at %s: %w", c.address(), err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("failed writing to muxer at %s: %w", c.address(), err)
	}
	log.WithFields(log.Fields{"address": c.address(), "bytes": len(frame)}).Trace("sent muxer frame")
	return nil
}
