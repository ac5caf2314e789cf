package ios

import (
	"bytes"
	"fmt"

	plist "howett.net/plist"
)

const (
	progName            = "jitstreamer-pair"
	clientVersionString = "jitstreamer-pair-0.1.2"
	bundleID            = "com.jkcoxson.jitstreamer.pair"
	libUSBMuxVersion    = 3
)

// ReadDevicesType is the ListDevices request for usbmuxd.
type ReadDevicesType struct {
	MessageType         string
	ProgName            string
	ClientVersionString string
}

// NewReadDevices creates a ListDevices request.
func NewReadDevices() ReadDevicesType {
	return ReadDevicesType{
		MessageType:         "ListDevices",
		ProgName:            progName,
		ClientVersionString: clientVersionString,
	}
}

// DeviceList is the response to a ListDevices request.
type DeviceList struct {
	DeviceList []DeviceEntry
}

// DeviceEntry contains the usbmuxd DeviceID needed to connect to services and the
// DeviceProperties holding the udid.
type DeviceEntry struct {
	DeviceID    int
	MessageType string
	Properties  DeviceProperties
}

// DeviceProperties holds device related info. The udid is named SerialNumber here.
type DeviceProperties struct {
	ConnectionSpeed int
	ConnectionType  string
	DeviceID        int
	LocationID      int
	ProductID       int
	SerialNumber    string
	NetworkAddress  []byte `plist:"NetworkAddress,omitempty"`
}

// ConnectionTypeNetwork is reported by usbmuxd for devices paired over WiFi.
const ConnectionTypeNetwork = "Network"

// UDID returns the unique device identifier.
func (d DeviceEntry) UDID() string {
	return d.Properties.SerialNumber
}

// IsNetwork is true for devices usbmuxd reaches over the network instead of USB.
func (d DeviceEntry) IsNetwork() bool {
	return d.Properties.ConnectionType == ConnectionTypeNetwork
}

// DeviceListfromBytes parses a DeviceList.
func DeviceListfromBytes(plistBytes []byte) (DeviceList, error) {
	decoder := plist.NewDecoder(bytes.NewReader(plistBytes))
	var deviceList DeviceList
	if err := decoder.Decode(&deviceList); err != nil {
		return DeviceList{}, fmt.Errorf("failed decoding device list: %w", err)
	}
	return deviceList, nil
}

// UDIDs returns the udids of all devices in the list.
func (deviceList DeviceList) UDIDs() []string {
	udids := make([]string, len(deviceList.DeviceList))
	for i, element := range deviceList.DeviceList {
		udids[i] = element.Properties.SerialNumber
	}
	return udids
}

// ListDevices requests the currently attached devices on this connection.
func (muxConn *UsbMuxConnection) ListDevices() (DeviceList, error) {
	payload, err := muxConn.request(NewReadDevices())
	if err != nil {
		return DeviceList{}, fmt.Errorf("failed getting devicelist: %w", err)
	}
	return DeviceListfromBytes(payload)
}

// ListDevices returns all devices known to usbmuxd using a new UsbMuxConnection.
func ListDevices() (DeviceList, error) {
	muxConnection, err := NewUsbMuxConnectionSimple()
	if err != nil {
		return DeviceList{}, err
	}
	defer muxConnection.Close()
	return muxConnection.ListDevices()
}
