package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type certificate struct {
	cert tls.Certificate
	leaf *x509.Certificate
}

// loadCertificate reads the externally supplied key pair. Coverage of the
// public hosts is checked but only warned about.
func (s *Server) loadCertificate() (*certificate, error) {
	certFile := strings.TrimSpace(s.cfg.TLSCertFile)
	keyFile := strings.TrimSpace(s.cfg.TLSKeyFile)
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair (cert=%s key=%s): %w", certFile, keyFile, err)
	}
	out := &certificate{cert: cert}
	if len(cert.Certificate) > 0 {
		out.leaf, _ = x509.ParseCertificate(cert.Certificate[0])
	}
	if out.leaf == nil {
		return out, nil
	}

	for _, host := range s.certificateProbeHosts() {
		if err := out.leaf.VerifyHostname(host); err != nil {
			s.log.Warn("tls certificate does not cover host", "host", host, "err", err)
		}
	}
	if time.Now().After(out.leaf.NotAfter) {
		s.log.Warn("tls certificate expired", "not_after", out.leaf.NotAfter)
	}
	s.log.Info("loaded tls certificate",
		"subject", out.leaf.Subject.CommonName,
		"dns_names", out.leaf.DNSNames,
		"not_after", out.leaf.NotAfter.UTC().Format(time.RFC3339),
	)
	return out, nil
}

func (s *Server) certificateProbeHosts() []string {
	return []string{
		s.cfg.Host,
		s.cfg.APIHost(),
		"probe" + s.cfg.ServSuffix(),
	}
}

// tlsErrorLogWriter routes net/http's TLS error log into slog, demoting the
// handshake noise produced by scanners.
type tlsErrorLogWriter struct {
	log *slog.Logger
}

func newTLSErrorLogWriter(logger *slog.Logger) *tlsErrorLogWriter {
	return &tlsErrorLogWriter{log: logger}
}

func (w *tlsErrorLogWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if line == "" {
		return len(p), nil
	}
	const marker = "TLS handshake error from "
	idx := strings.Index(line, marker)
	if idx < 0 {
		w.log.Warn("https server error", "err", line)
		return len(p), nil
	}
	addr, reason, ok := strings.Cut(line[idx+len(marker):], ": ")
	if !ok {
		w.log.Debug("tls handshake dropped", "detail", line[idx+len(marker):])
		return len(p), nil
	}
	reason = strings.TrimSpace(reason)
	if isScannerTLSReason(reason) {
		w.log.Debug("tls handshake rejected", "remote_addr", strings.TrimSpace(addr), "reason", reason)
		return len(p), nil
	}
	w.log.Warn("tls handshake failed", "remote_addr", strings.TrimSpace(addr), "reason", reason)
	return len(p), nil
}

func isScannerTLSReason(reason string) bool {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return false
	}
	if reason == "eof" {
		return true
	}
	for _, s := range []string{
		"missing server name",
		"unsupported application protocols",
		"offered only unsupported versions",
		"no cipher suite supported",
		"unsupported sslv2 handshake",
		"connection reset by peer",
		"i/o timeout",
		"first record does not look like a tls handshake",
		"http request to an https server",
	} {
		if strings.Contains(reason, s) {
			return true
		}
	}
	return false
}
