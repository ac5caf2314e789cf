package netmuxd

import (
	"context"

	"github.com/jkcoxson/jitstreamer-pair/poll"
	log "github.com/sirupsen/logrus"
)

// DeviceLister returns the udids currently known to the device multiplexer.
type DeviceLister func(ctx context.Context) ([]string, error)

// Connect registers udid at ip and waits for it to show up in list. The registration is best
// effort, its error is only logged. It returns false when the poll budget runs out and false
// with the error when listing fails.
func (c *Client) Connect(ctx context.Context, udid, ip string, list DeviceLister) (bool, error) {
	logger := log.WithFields(log.Fields{"udid": udid, "ip": ip})
	logger.Info("waiting for device to appear in muxer")
	if err := c.Register(ctx, udid, ip); err != nil {
		logger.WithField("err", err).Warn("registering device failed")
	}
	return poll.Until(ctx, c.policy(), func(ctx context.Context) (bool, error) {
		udids, err := list(ctx)
		if err != nil {
			return false, err
		}
		for _, known := range udids {
			if known == udid {
				return true, nil
			}
		}
		logger.Debug("device not listed yet")
		return false, nil
	})
}

func (c *Client) policy() poll.Policy {
	if c.Policy.MaxAttempts == 0 {
		return poll.DefaultPolicy
	}
	return c.Policy
}
