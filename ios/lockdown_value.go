package ios

import (
	"fmt"

	"github.com/Masterminds/semver"
	log "github.com/sirupsen/logrus"
)

const (
	wirelessLockdownDomain = "com.apple.mobile.wireless_lockdown"
	enableWifiDebuggingKey = "EnableWifiDebugging"
)

type valueRequest struct {
	Label   string
	Key     string      `plist:"Key,omitempty"`
	Request string
	Domain  string      `plist:"Domain,omitempty"`
	Value   interface{} `plist:"Value,omitempty"`
}

// ValueResponse is the reply to GetValue and SetValue.
type ValueResponse struct {
	Key     string
	Request string
	Domain  string
	Value   interface{}
}

// GetValue returns the value lockdown stores for key in the default domain.
func (lockDownConn *LockDownConnection) GetValue(key string) (interface{}, error) {
	return lockDownConn.GetValueForDomain(key, "")
}

// GetValueForDomain returns the value lockdown stores for key in domain.
func (lockDownConn *LockDownConnection) GetValueForDomain(key string, domain string) (interface{}, error) {
	req := valueRequest{Label: lockdownLabel, Key: key, Domain: domain, Request: "GetValue"}
	var response ValueResponse
	if err := lockDownConn.roundTrip("GetValue", req, &response); err != nil {
		return nil, err
	}
	return response.Value, nil
}

// SetValueForDomain sets key in domain. A device side failure is returned as *LockdownError.
func (lockDownConn *LockDownConnection) SetValueForDomain(key string, domain string, value interface{}) error {
	req := valueRequest{Label: lockdownLabel, Key: key, Domain: domain, Request: "SetValue", Value: value}
	if err := lockDownConn.roundTrip("SetValue", req, nil); err != nil {
		return fmt.Errorf("failed setting '%s' in '%s' to '%v': %w", key, domain, value, err)
	}
	return nil
}

// ProductVersion returns the iOS version of the device f.ex. "16.4.1".
func (lockDownConn *LockDownConnection) ProductVersion() (*semver.Version, error) {
	msg, err := lockDownConn.GetValue("ProductVersion")
	if err != nil {
		return nil, fmt.Errorf("failed getting ProductVersion: %w", err)
	}
	version, ok := msg.(string)
	if !ok {
		return nil, fmt.Errorf("could not convert ProductVersion to string: %+v", msg)
	}
	return semver.NewVersion(version)
}

// EnableWirelessDebugging turns on WiFi sync, after that the device accepts lockdown
// connections over the network with the pair record of this host.
// Needs an active session.
func (lockDownConn *LockDownConnection) EnableWirelessDebugging() error {
	if version, err := lockDownConn.ProductVersion(); err == nil && version.LessThan(IOS11()) {
		log.WithField("version", version.String()).Warn("device is older than iOS 11, wireless debugging is probably not supported")
	}
	return lockDownConn.SetValueForDomain(enableWifiDebuggingKey, wirelessLockdownDomain, true)
}
