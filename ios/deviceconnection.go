package ios

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"

	log "github.com/sirupsen/logrus"
)

// DeviceConnectionInterface is a network connection to usbmuxd that can later be switched to
// TLS once a lockdown session asks for it.
type DeviceConnectionInterface interface {
	Close() error
	Send(message []byte) error
	Reader() io.Reader
	Writer() io.Writer
	EnableSessionSsl(pairRecord PairRecord) error
	Conn() net.Conn
}

// DeviceConnection wraps the net.Conn to usbmuxd or, after Connect, to a service on the device.
type DeviceConnection struct {
	c net.Conn
}

// NewDeviceConnection dials socketAddress, which has the form scheme://address.
func NewDeviceConnection(socketAddress string) (*DeviceConnection, error) {
	network, address, err := GetSocketTypeAndAddress(socketAddress)
	if err != nil {
		return nil, err
	}
	c, err := net.Dial(network, address)
	if err != nil {
		return nil, err
	}
	log.Tracef("opening connection: %v", &c)
	return &DeviceConnection{c: c}, nil
}

// NewDeviceConnectionWithConn creates a DeviceConnection from an already connected net.Conn.
func NewDeviceConnectionWithConn(conn net.Conn) *DeviceConnection {
	return &DeviceConnection{c: conn}
}

// Close closes the network connection.
func (conn *DeviceConnection) Close() error {
	log.Tracef("closing connection: %v", &conn.c)
	return conn.c.Close()
}

// Send writes bytes and closes the connection when that fails.
func (conn *DeviceConnection) Send(bytes []byte) error {
	n, err := conn.c.Write(bytes)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed sending %d bytes, only %d sent: %w", len(bytes), n, err)
	}
	return nil
}

// Reader exposes the current connection as io.Reader.
func (conn *DeviceConnection) Reader() io.Reader {
	return conn.c
}

// Writer exposes the current connection as io.Writer.
func (conn *DeviceConnection) Writer() io.Writer {
	return conn.c
}

// Conn returns the current, possibly TLS wrapped, connection.
func (conn *DeviceConnection) Conn() net.Conn {
	return conn.c
}

// EnableSessionSsl wraps the connection in a client tls.Conn authenticated with the host
// certificate of pairRecord.
func (conn *DeviceConnection) EnableSessionSsl(pairRecord PairRecord) error {
	cert, err := tls.X509KeyPair(pairRecord.HostCertificate, pairRecord.HostPrivateKey)
	if err != nil {
		return fmt.Errorf("invalid host certificate in pair record: %w", err)
	}
	conf := &tls.Config{
		// the device presents a certificate signed by our own root, there is no CA to check against
		InsecureSkipVerify: true,
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS10,
	}
	tlsConn := tls.Client(conn.c, conf)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("tls handshake failed: %w", err)
	}
	log.Tracef("enabled session ssl on %v", &conn.c)
	conn.c = tlsConn
	return nil
}
