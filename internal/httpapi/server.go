package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/pkarrdns/pkarrdns/internal/perr"
)

// shutdownGrace bounds how long in-flight requests may drain on cancel.
const shutdownGrace = 5 * time.Second

// Serve runs a plaintext HTTP listener on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	return serve(ctx, addr, handler, nil)
}

// ServeTLS runs an HTTPS listener on addr with the given acceptor config.
func ServeTLS(ctx context.Context, addr string, handler http.Handler, tlsConfig *tls.Config) error {
	return serve(ctx, addr, handler, tlsConfig)
}

func serve(ctx context.Context, addr string, handler http.Handler, tlsConfig *tls.Config) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	scheme := "http"
	if tlsConfig != nil {
		scheme = "https"
	}
	logger.WithField("addr", addr).WithField("scheme", scheme).Info("relay listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return perr.New(perr.BindError, "httpapi.Serve", err)
	}
}
