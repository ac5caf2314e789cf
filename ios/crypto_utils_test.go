package ios

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDevicePublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	pkcs1Key, err := parseDevicePublicKey(pemEncode("RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&key.PublicKey)))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pkcs1Key))

	pkixKey, err := parseDevicePublicKey(pemEncode("PUBLIC KEY", pkix))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pkixKey))

	_, err = parseDevicePublicKey([]byte("not pem"))
	assert.Error(t, err)
}

func TestCreatePairingCertificates(t *testing.T) {
	deviceKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	certs, err := createPairingCertificates(pemEncode("RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&deviceKey.PublicKey)))
	require.NoError(t, err)

	root := parseCertificate(t, certs.RootCertificate)
	host := parseCertificate(t, certs.HostCertificate)
	device := parseCertificate(t, certs.DeviceCertificate)
	assert.True(t, root.IsCA)
	assert.NoError(t, host.CheckSignatureFrom(root))
	assert.NoError(t, device.CheckSignatureFrom(root))
	assert.Equal(t, x509.SHA256WithRSA, device.SignatureAlgorithm)

	// the host pair has to work as TLS client certificate for lockdown sessions
	_, err = tls.X509KeyPair(certs.HostCertificate, certs.HostPrivateKey)
	assert.NoError(t, err)
	_, err = tls.X509KeyPair(certs.RootCertificate, certs.RootPrivateKey)
	assert.NoError(t, err)
}

func parseCertificate(t *testing.T, data []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}
