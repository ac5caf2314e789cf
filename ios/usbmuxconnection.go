package ios

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"reflect"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// usbmuxdSocketOverride is set from configuration and wins over the environment.
var usbmuxdSocketOverride string

// SetUsbmuxdSocket overrides the socket address returned by GetUsbmuxdSocket.
// Plain paths are treated as unix sockets, host:port values as tcp.
func SetUsbmuxdSocket(address string) {
	usbmuxdSocketOverride = normalizeSocketAddress(address)
}

func normalizeSocketAddress(address string) string {
	if address == "" || strings.Contains(address, "://") {
		return address
	}
	if strings.Contains(address, ":") {
		return "tcp://" + address
	}
	return "unix://" + address
}

// GetSocketTypeAndAddress splits scheme://address into network and address for net.Dial.
func GetSocketTypeAndAddress(socketAddress string) (string, string, error) {
	chunks := strings.SplitN(socketAddress, "://", 2)
	if len(chunks) != 2 {
		return "", "", fmt.Errorf("invalid socket address %q, needs scheme://address", socketAddress)
	}
	return chunks[0], chunks[1], nil
}

// GetUsbmuxdSocket returns the usbmuxd address for this platform unless it was overridden
// by SetUsbmuxdSocket or the USBMUXD_SOCKET_ADDRESS env variable.
func GetUsbmuxdSocket() string {
	if usbmuxdSocketOverride != "" {
		return usbmuxdSocketOverride
	}
	if env := os.Getenv("USBMUXD_SOCKET_ADDRESS"); env != "" {
		return normalizeSocketAddress(env)
	}
	if runtime.GOOS == "windows" {
		return "tcp://127.0.0.1:27015"
	}
	return "unix:///var/run/usbmuxd"
}

// UsbMuxConnection talks the plist protocol of usbmuxd. Every request carries a tag that is
// increased with each sent message so responses can be correlated.
type UsbMuxConnection struct {
	tag        uint32
	deviceConn DeviceConnectionInterface
}

// NewUsbMuxConnection creates a UsbMuxConnection on top of an already connected DeviceConnectionInterface.
func NewUsbMuxConnection(deviceConn DeviceConnectionInterface) *UsbMuxConnection {
	return &UsbMuxConnection{deviceConn: deviceConn}
}

// NewUsbMuxConnectionSimple dials the default usbmuxd socket.
func NewUsbMuxConnectionSimple() (*UsbMuxConnection, error) {
	deviceConn, err := NewDeviceConnection(GetUsbmuxdSocket())
	if err != nil {
		return nil, fmt.Errorf("could not connect to usbmuxd at %s, is it running? %w", GetUsbmuxdSocket(), err)
	}
	return NewUsbMuxConnection(deviceConn), nil
}

// ReleaseDeviceConnection hands the underlying connection to the caller. The UsbMuxConnection
// must not be used afterwards.
func (muxConn *UsbMuxConnection) ReleaseDeviceConnection() DeviceConnectionInterface {
	conn := muxConn.deviceConn
	muxConn.deviceConn = nil
	return conn
}

// Close closes the underlying connection.
func (muxConn *UsbMuxConnection) Close() error {
	if muxConn.deviceConn == nil {
		return nil
	}
	return muxConn.deviceConn.Close()
}

// UsbMuxMessage contains header and payload of a usbmuxd message.
type UsbMuxMessage struct {
	Header  UsbMuxHeader
	Payload []byte
}

// UsbMuxHeader is the little endian header in front of every plist usbmuxd message.
type UsbMuxHeader struct {
	Length  uint32
	Version uint32
	Request uint32
	Tag     uint32
}

const (
	usbmuxHeaderSize     = 16
	usbmuxPlistVersion   = 1
	usbmuxPlistRequestID = 8
)

// Send encodes msg as plist and writes it with a fresh tag.
func (muxConn *UsbMuxConnection) Send(msg interface{}) error {
	if muxConn.deviceConn == nil {
		return io.EOF
	}
	muxConn.tag++
	log.Tracef("usbmux send %v tag:%d", reflect.TypeOf(msg), muxConn.tag)
	payload, err := ToPlistBytes(msg)
	if err != nil {
		return err
	}
	header := UsbMuxHeader{
		Length:  usbmuxHeaderSize + uint32(len(payload)),
		Version: usbmuxPlistVersion,
		Request: usbmuxPlistRequestID,
		Tag:     muxConn.tag,
	}
	writer := muxConn.deviceConn.Writer()
	if err := binary.Write(writer, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed writing usbmux header: %w", err)
	}
	_, err = writer.Write(payload)
	return err
}

// ReadMessage blocks until the next usbmuxd message arrived.
func (muxConn *UsbMuxConnection) ReadMessage() (UsbMuxMessage, error) {
	if muxConn.deviceConn == nil {
		return UsbMuxMessage{}, io.EOF
	}
	return decodeUsbMuxMessage(muxConn.deviceConn.Reader())
}

func decodeUsbMuxMessage(r io.Reader) (UsbMuxMessage, error) {
	var header UsbMuxHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return UsbMuxMessage{}, err
	}
	if header.Length < usbmuxHeaderSize {
		return UsbMuxMessage{}, fmt.Errorf("invalid usbmux header length %d", header.Length)
	}
	payload := make([]byte, header.Length-usbmuxHeaderSize)
	n, err := io.ReadFull(r, payload)
	if err != nil {
		return UsbMuxMessage{}, fmt.Errorf("reading usbmux payload, got %d of %d bytes: %w", n, len(payload), err)
	}
	return UsbMuxMessage{Header: header, Payload: payload}, nil
}

// request sends msg and returns the payload of the response.
func (muxConn *UsbMuxConnection) request(msg interface{}) ([]byte, error) {
	if err := muxConn.Send(msg); err != nil {
		return nil, err
	}
	resp, err := muxConn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}
