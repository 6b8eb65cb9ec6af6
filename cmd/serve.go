package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/news-aggregator/internal/api"
)

const defaultShutdownTimeout = 10 * time.Second

// newServeCmd crawls once and serves the index over HTTP until interrupted.
// Probes and run endpoints answer while the crawl is still running.
func newServeCmd(d deps, opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Crawl the feed list and serve search over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.resolve(d)
			if err != nil {
				return err
			}
			if port > 0 {
				s.cfg.Server.Port = port
			}
			ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Server.Port))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return runServe(cmd, d, s, ln)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

// runServe owns ln and returns once the server has shut down.
func runServe(cmd *cobra.Command, d deps, s settings, ln net.Listener) error {
	a, err := s.newApp(cmd.Context(), d)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer a.Close()
	logger := s.logger

	server := api.NewServer(api.Options{
		Runs:       a.Runs(),
		MaxResults: s.cfg.Query.MaxResults,
		Logger:     logger.Named("api"),
	})
	srv := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	shutdownTimeout := s.cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		idx, err := crawl(cmd, a, s.cfg.Crawler.FeedListURI)
		if err != nil {
			return err
		}
		server.SetIndex(idx)
		logger.Info("index ready", zap.Int("tokens", idx.Len()), zap.Int("articles", idx.Articles()))
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	})
	return g.Wait()
}
