package transport

import (
	"crypto/tls"
	"crypto/x509"

	"github.com/canonical/landscape-client-sub002/errors"
)

// RecommendedCiphers is a conservative, forward-secrecy-only cipher suite
// selection suitable for talking to a modern management server.
var RecommendedCiphers = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// RecommendedCurves is the curve preference list paired with RecommendedCiphers.
var RecommendedCurves = []tls.CurveID{
	tls.X25519,
	tls.CurveP256,
}

// TLS defines available settings when validating the management server's
// certificate (spec §6.1: "server certificate validated against a
// configured CA file; no validation bypass in production"). The broker is
// only ever a TLS client here, so no local certificate/key pair is needed.
type TLS struct {
	// IncludeSystemCAs adds the host's system certificate pool to the
	// trust store, in addition to CustomCAs.
	IncludeSystemCAs bool

	// CustomCAs is a list of PEM-encoded CA certificates; at minimum the
	// certificate of the management server's issuing CA.
	CustomCAs [][]byte

	// SupportedCiphers overrides RecommendedCiphers when non-empty.
	SupportedCiphers []uint16

	// PreferredCurves overrides RecommendedCurves when non-empty.
	PreferredCurves []tls.CurveID
}

// Expand returns a *tls.Config built from these settings.
func (t TLS) Expand() (*tls.Config, error) {
	var cp *x509.CertPool
	var err error
	if t.IncludeSystemCAs {
		cp, err = x509.SystemCertPool()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load system CAs")
		}
	} else {
		cp = x509.NewCertPool()
	}

	for _, c := range t.CustomCAs {
		if !cp.AppendCertsFromPEM(c) {
			return nil, errors.New("failed to append provided CA certificates")
		}
	}

	ciphers := t.SupportedCiphers
	if len(ciphers) == 0 {
		ciphers = RecommendedCiphers
	}
	curves := t.PreferredCurves
	if len(curves) == 0 {
		curves = RecommendedCurves
	}

	return &tls.Config{
		CipherSuites:     ciphers,
		CurvePreferences: curves,
		RootCAs:          cp,
		MinVersion:       tls.VersionTLS12,
	}, nil
}
