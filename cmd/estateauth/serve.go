package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	ea "github.com/panyam/estateauth"
	"github.com/panyam/estateauth/config"
	"github.com/panyam/estateauth/imagehost"
	"github.com/panyam/estateauth/oauth2"
)

func newServeCommand(envFile *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			return serve(cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Run store migrations before serving")
	return cmd
}

func serve(cfg *config.Config, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	if migrate {
		if err := b.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler, err := newHandler(ctx, cfg, b, reg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "estateauth: server shutdown error: %v\n", err)
		}
	}()

	log.Printf("listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newHandler wires the authenticator and its optional collaborators into a
// router with the auth API, /metrics and /healthz
func newHandler(ctx context.Context, cfg *config.Config, b *backends, reg *prometheus.Registry) (http.Handler, error) {
	tokens, err := ea.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	tokens.AccessTokenExpiry = cfg.AccessTokenTTL
	tokens.RefreshTokenExpiry = cfg.RefreshTokenTTL

	auth := &ea.Authenticator{
		Principals:       b.Principals,
		Sync:             ea.NewIdentitySynchronizer(b.Profiles),
		Hasher:           ea.BcryptHasher{},
		Tokens:           tokens,
		PhotoTimeout:     cfg.OAuthTimeout,
		AdminEmailDomain: cfg.AdminEmailDomain,
		Metrics:          ea.NewMetrics(reg),
		Logger:           slog.Default(),
	}

	if cfg.GoogleEnabled() {
		exchanger, err := oauth2.NewGoogleExchanger(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret)
		if err != nil {
			return nil, err
		}
		exchanger.Timeout = cfg.OAuthTimeout
		auth.OAuth = exchanger
	} else {
		log.Printf("google sign-in disabled: GOOGLE_CLIENT_ID not set")
	}

	if cfg.S3.Enabled() {
		s3Client, err := imagehost.NewS3Client(ctx, imagehost.Options{
			Endpoint:       cfg.S3.Endpoint,
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			PublicBaseURL:  cfg.S3.PublicBaseURL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 client: %w", err)
		}
		auth.Photos = imagehost.NewMirror(s3Client)
	}

	api := &ea.API{
		Auth:               auth,
		DefaultRedirectURL: cfg.GoogleRedirectURL,
		LoginRateLimit:     cfg.LoginRateLimit,
	}

	r := mux.NewRouter()
	api.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	return r, nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
