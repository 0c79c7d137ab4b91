package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ShutdownTimeout bounds graceful shutdown once the serve context is done.
const ShutdownTimeout = 10 * time.Second

// NewServer builds an http.Server for addr with conservative timeouts.
// A non-nil tlsCfg makes Serve listen with HTTPS.
func NewServer(addr string, h http.Handler, tlsCfg *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a start or stop can queue behind the lock for the request timeout
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, lg *slog.Logger) error {
	if lg == nil {
		lg = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		var err error
		if srv.TLSConfig != nil {
			lg.Info("listening", "addr", srv.Addr, "tls", true)
			// certificates come from TLSConfig.GetCertificate
			err = srv.ListenAndServeTLS("", "")
		} else {
			lg.Info("listening", "addr", srv.Addr, "tls", false)
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	lg.Info("shutting down http server")
	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
