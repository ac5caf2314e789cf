package ios

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	pairingKeyBits     = 2048
	pairingCertYears   = 10
	pemTypeCertificate = "CERTIFICATE"
	pemTypeRSAPrivate  = "RSA PRIVATE KEY"
)

// pairingCertificates holds the PEM encoded material of a new pair record.
type pairingCertificates struct {
	RootCertificate   []byte
	RootPrivateKey    []byte
	HostCertificate   []byte
	HostPrivateKey    []byte
	DeviceCertificate []byte
}

// createPairingCertificates creates a root CA, a host certificate and a certificate for the
// device public key, both signed by the root.
func createPairingCertificates(devicePublicKeyPEM []byte) (pairingCertificates, error) {
	devicePublicKey, err := parseDevicePublicKey(devicePublicKeyPEM)
	if err != nil {
		return pairingCertificates{}, err
	}
	rootKey, err := rsa.GenerateKey(rand.Reader, pairingKeyBits)
	if err != nil {
		return pairingCertificates{}, err
	}
	hostKey, err := rsa.GenerateKey(rand.Reader, pairingKeyBits)
	if err != nil {
		return pairingCertificates{}, err
	}

	rootTemplate := certificateTemplate(1, &rootKey.PublicKey)
	rootTemplate.IsCA = true
	rootTemplate.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		return pairingCertificates{}, fmt.Errorf("failed creating root certificate: %w", err)
	}
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return pairingCertificates{}, err
	}

	hostTemplate := certificateTemplate(2, &hostKey.PublicKey)
	hostDER, err := x509.CreateCertificate(rand.Reader, hostTemplate, root, &hostKey.PublicKey, rootKey)
	if err != nil {
		return pairingCertificates{}, fmt.Errorf("failed creating host certificate: %w", err)
	}

	deviceTemplate := certificateTemplate(3, devicePublicKey)
	deviceDER, err := x509.CreateCertificate(rand.Reader, deviceTemplate, root, devicePublicKey, rootKey)
	if err != nil {
		return pairingCertificates{}, fmt.Errorf("failed creating device certificate: %w", err)
	}

	return pairingCertificates{
		RootCertificate:   pemEncode(pemTypeCertificate, rootDER),
		RootPrivateKey:    pemEncode(pemTypeRSAPrivate, x509.MarshalPKCS1PrivateKey(rootKey)),
		HostCertificate:   pemEncode(pemTypeCertificate, hostDER),
		HostPrivateKey:    pemEncode(pemTypeRSAPrivate, x509.MarshalPKCS1PrivateKey(hostKey)),
		DeviceCertificate: pemEncode(pemTypeCertificate, deviceDER),
	}, nil
}

func certificateTemplate(serial int64, pub *rsa.PublicKey) *x509.Certificate {
	now := time.Now()
	return &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.AddDate(pairingCertYears, 0, 0),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		SubjectKeyId:          subjectKeyID(pub),
	}
}

func subjectKeyID(pub *rsa.PublicKey) []byte {
	digest := sha1.Sum(x509.MarshalPKCS1PublicKey(pub))
	return digest[:]
}

// parseDevicePublicKey accepts the PKCS#1 "RSA PUBLIC KEY" lockdown returns and PKIX as fallback.
func parseDevicePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing the device public key")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse device public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("device public key is %T, expected RSA", key)
	}
	return rsaKey, nil
}

func pemEncode(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}
