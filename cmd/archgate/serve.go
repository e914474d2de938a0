package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/archgate/pkg/api"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Serve the ACR review and constraint API",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, addr, watch, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":"+a.cfg.Port, "listen address")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the constraint catalog when it changes")
	return cmd
}

// serve runs the API until ctx is done. ready, if non-nil, receives the bound
// address once the listener is open.
func (a *app) serve(ctx context.Context, addr string, watch bool, ready chan<- string) error {
	wf, err := a.workflow(ctx)
	if err != nil {
		return err
	}
	reg := a.registry()
	if watch {
		go func() {
			if err := constraints.Watch(ctx, reg, a.cfg.ConstraintsPath, 0); err != nil {
				a.logger.Warn("constraint catalog watch stopped", "error", err)
			}
		}()
	}

	limiter := api.NewRateLimiter(a.cfg.RateLimit, a.cfg.RateBurst)
	go limiter.Run(ctx)

	srv := api.NewServer(wf, reg,
		api.WithAuthenticator(api.NewAuthenticator(a.cfg.JWTSecret, "archgate")),
		api.WithRateLimiter(limiter),
		api.WithMetrics(a.metrics, a.metrics.Handler()),
		api.WithLogger(a.logger.With("component", "api")),
	)
	if a.cfg.JWTSecret == "" {
		a.logger.Warn("ARCHGATE_JWT_SECRET is not set; mutating endpoints are unauthenticated")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()
	a.logger.Info("archgate api listening", "addr", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("archgate api shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with ARCHGATE_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			auth := api.NewAuthenticator(a.cfg.JWTSecret, "archgate")
			if auth == nil {
				return errors.New("ARCHGATE_JWT_SECRET is not set")
			}
			token, err := auth.Issue(subject, roles, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.stdout, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (the reviewer identity)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "granted role, e.g. reviewer (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
