package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/quic-go/quic-go/http3"
	"golang.org/x/sync/errgroup"
)

type listener struct {
	name  string
	serve func() error
	stop  func() error
}

// Run binds the configured listeners, starts the janitor and blocks until ctx
// is cancelled or a listener fails. Pending notifications are drained before
// it returns. Run must be called at most once.
func (s *Server) Run(ctx context.Context) error {
	listeners, err := s.bind()
	if err != nil {
		return err
	}
	close(s.ready)

	go s.pending.Start()
	defer s.pending.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.runJanitor(gctx)
		return nil
	})
	for _, l := range listeners {
		g.Go(func() error {
			s.log.Info("starting listener", "name", l.name, "addr", s.Addr(l.name))
			if err := l.serve(); err != nil && !isClosedErr(err) {
				return fmt.Errorf("%s server: %w", l.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		var firstErr error
		for _, l := range listeners {
			if err := l.stop(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("shutdown %s: %w", l.name, err)
			}
		}
		return firstErr
	})

	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), notifierDrainTimeout)
	defer cancel()
	if err := s.notifier.Close(drainCtx); err != nil {
		s.log.Warn("notifications not drained before shutdown", "err", err)
	}
	return runErr
}

// bind opens every socket up front so that a port conflict fails Run before
// anything is served.
func (s *Server) bind() (out []listener, err error) {
	var opened []func() error
	defer func() {
		if err != nil {
			for _, c := range opened {
				_ = c()
			}
		}
	}()

	var tlsConfig *tls.Config
	if s.cfg.HTTPSEnabled {
		cert, err := s.loadCertificate()
		if err != nil {
			return nil, err
		}
		tlsConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert.cert},
		}
	}

	if s.cfg.HTTPEnabled {
		var handler http.Handler = s.gateway
		if s.cfg.RedirectHTTP && s.cfg.HTTPSEnabled {
			handler = s.redirectHandler()
		}
		ln, err := net.Listen("tcp", s.listenAddr(s.cfg.HTTPPort))
		if err != nil {
			return nil, fmt.Errorf("listen http: %w", err)
		}
		opened = append(opened, ln.Close)
		s.setAddr("http", ln.Addr())
		srv := newHTTPServer(handler)
		out = append(out, listener{
			name:  "http",
			serve: func() error { return srv.Serve(ln) },
			stop:  func() error { return shutdownServer(srv, shutdownTimeout) },
		})
	}

	if s.cfg.HTTPSEnabled {
		var handler http.Handler = s.gateway

		if s.cfg.HTTP3 {
			udp, err := net.ListenPacket("udp", s.listenAddr(s.cfg.HTTPSPort))
			if err != nil {
				return nil, fmt.Errorf("listen http3: %w", err)
			}
			opened = append(opened, udp.Close)
			s.setAddr("http3", udp.LocalAddr())
			h3 := &http3.Server{
				Port:      udpPort(udp.LocalAddr()),
				Handler:   s.gateway,
				TLSConfig: http3.ConfigureTLSConfig(tlsConfig.Clone()),
			}
			handler = s.altSvc(h3, handler)
			out = append(out, listener{
				name:  "http3",
				serve: func() error { return h3.Serve(udp) },
				stop:  h3.Close,
			})
		}

		ln, err := net.Listen("tcp", s.listenAddr(s.cfg.HTTPSPort))
		if err != nil {
			return nil, fmt.Errorf("listen https: %w", err)
		}
		opened = append(opened, ln.Close)
		s.setAddr("https", ln.Addr())
		srv := newHTTPServer(handler)
		srv.TLSConfig = tlsConfig
		srv.ErrorLog = log.New(newTLSErrorLogWriter(s.log), "", 0)
		out = append(out, listener{
			name:  "https",
			serve: func() error { return srv.ServeTLS(ln, "", "") },
			stop:  func() error { return shutdownServer(srv, shutdownTimeout) },
		})
	}

	if s.cfg.MetricsListen != "" {
		ln, err := net.Listen("tcp", s.cfg.MetricsListen)
		if err != nil {
			return nil, fmt.Errorf("listen metrics: %w", err)
		}
		opened = append(opened, ln.Close)
		s.setAddr("metrics", ln.Addr())
		srv := newHTTPServer(s.metricsMux())
		out = append(out, listener{
			name:  "metrics",
			serve: func() error { return srv.Serve(ln) },
			stop:  func() error { return shutdownServer(srv, shutdownTimeout) },
		})
	}
	return out, nil
}

// altSvc advertises the HTTP/3 endpoint on every HTTPS response.
func (s *Server) altSvc(h3 *http3.Server, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h3.SetQUICHeaders(w.Header()); err != nil {
			s.log.Debug("set alt-svc header", "err", err)
		}
		next.ServeHTTP(w, r)
	})
}

func udpPort(addr net.Addr) int {
	if u, ok := addr.(*net.UDPAddr); ok {
		return u.Port
	}
	return 0
}

func isClosedErr(err error) bool {
	return errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed)
}
