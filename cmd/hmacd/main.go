package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wzshiming/hmacd/pkg/auditlog"
	"github.com/wzshiming/hmacd/pkg/config"
	"github.com/wzshiming/hmacd/pkg/keystore"
	"github.com/wzshiming/hmacd/pkg/metrics"
	"github.com/wzshiming/hmacd/pkg/middleware"
	"github.com/wzshiming/hmacd/pkg/sharedkey"
)

// accountHeader carries the authenticated account to the upstream service.
const accountHeader = "X-Auth-Account"

func main() {
	configPath := flag.String("config", "hmacd.yaml", "Path to the configuration file")
	addr := flag.String("addr", "", "Listen address, overrides the configuration file")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *addr != "" {
		cfg.Listen = *addr
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = log.Level(level)

	handler, cleanup, err := buildHandler(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build handler")
	}
	defer cleanup()

	if cfg.MetricsListen != "" {
		go serveMetrics(cfg.MetricsListen)
	}

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: handler,
	}

	go func() {
		log.Info().
			Str("listen", cfg.Listen).
			Str("upstream", cfg.Upstream).
			Msg("starting authenticating proxy")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

// buildHandler assembles the stage chain: access logging, path normalization,
// authentication, then the reverse proxy to the upstream.
func buildHandler(cfg *config.Config) (http.Handler, func(), error) {
	resolver, closeStore, err := buildKeystore(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := closeStore

	auth, err := middleware.NewAuthHandler(resolver)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if cfg.Scheme != "" {
		auth.SetScheme(cfg.Scheme)
	}
	if cfg.MaxAge != 0 {
		auth.SetMaxAge(time.Duration(cfg.MaxAge))
	}
	if cfg.MaxSkew != 0 {
		auth.SetMaxSkew(time.Duration(cfg.MaxSkew))
	}
	if cfg.ExpiredStatus != 0 {
		if err := auth.SetExpiredStatus(cfg.ExpiredStatus); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	auth.SetDistinguishRejections(cfg.DistinguishRejections)
	auth.SetLogger(log.Logger)
	auth.SetMetrics(metrics.New(nil))

	if cfg.AuditLog != "" {
		file, err := os.OpenFile(cfg.AuditLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		audit := auditlog.NewLogger(file)
		auth.SetAuditLogger(audit)
		closeAll := cleanup
		cleanup = func() {
			audit.Close()
			file.Close()
			closeAll()
		}
	}

	proxy, err := buildProxy(cfg.Upstream)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	chain := auth.Middleware(proxy)
	chain = middleware.NewPathSanitizer(chain)
	chain = handlers.CombinedLoggingHandler(os.Stdout, chain)
	return chain, cleanup, nil
}

// buildKeystore opens the configured secret store.
func buildKeystore(cfg *config.Config) (sharedkey.SecretResolver, func(), error) {
	if cfg.Keystore.Path != "" {
		store, err := keystore.OpenBolt(cfg.Keystore.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}

	store := keystore.NewStatic()
	for _, account := range cfg.Keystore.Accounts {
		secret, err := account.DecodedSecret()
		if err != nil {
			return nil, nil, err
		}
		store.Add(account.Account, secret)
		log.Info().Str("account", account.Account).Msg("loaded account")
	}
	return store, func() {}, nil
}

// buildProxy forwards authenticated requests upstream, replacing the inbound
// authorization headers with the authenticated account name.
func buildProxy(upstream string) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del(accountHeader)
			if id, ok := middleware.IdentityFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(accountHeader, id.Account)
			}
		},
	}, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Str("listen", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server failed")
	}
}
