package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hako/durafmt"
	"github.com/pkarrdns/pkarrdns/internal/anycast"
	"github.com/pkarrdns/pkarrdns/internal/audit"
	"github.com/pkarrdns/pkarrdns/internal/config"
	"github.com/pkarrdns/pkarrdns/internal/dnsserver"
	"github.com/pkarrdns/pkarrdns/internal/httpapi"
	"github.com/pkarrdns/pkarrdns/internal/log"
	"github.com/pkarrdns/pkarrdns/internal/state"
	"github.com/pkarrdns/pkarrdns/internal/store"
	"github.com/pkarrdns/pkarrdns/internal/tlsaccept"
	"github.com/pkarrdns/pkarrdns/internal/xcache"
	"github.com/pkarrdns/pkarrdns/internal/zone"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run(ctx context.Context, configPath string) error {
	start := time.Now()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Configure(cfg.Log)

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	st, err := store.Open(config.StorePath(dataDir))
	if err != nil {
		return err
	}
	defer st.Close()

	staticCfgs, origins, err := buildStaticZone(cfg)
	if err != nil {
		return err
	}

	authority, err := zone.New(zone.Config{
		Store:             st,
		Static:            zone.NewStaticZone(cfg.DNS.Serial, staticCfgs),
		PrimaryOrigin:     origins[0],
		AdditionalOrigins: origins[1:],
		Serial:            cfg.DNS.Serial,
		MaxZones:          cfg.DNS.MaxZones,
	}, func(decErr error) {
		logger.WithError(decErr).Warn("skipping undecodable stored packet")
	})
	if err != nil {
		return err
	}

	appState := state.New(authority, zone.NewCatalog(authority), st)

	if cfg.XCache.Enabled {
		bus := xcache.New(cfg.XCache.Addr)
		if err := bus.Ping(ctx); err != nil {
			return fmt.Errorf("xcache: %w", err)
		}
		defer bus.Close()
		bus.Subscribe(ctx, authority)
		appState.Invalidator = bus
		logger.WithField("addr", cfg.XCache.Addr).Info("cross-node invalidation enabled")
	}

	if cfg.AuditLog.Enabled {
		sink, err := audit.Open(ctx, cfg.AuditLog.DSN)
		if err != nil {
			return err
		}
		defer sink.Close()
		appState.Audit = sink
		logger.Info("publish audit log enabled")
	}

	errCh := make(chan error, 4)

	dnsAddr := fmt.Sprintf(":%d", cfg.DNS.Port)
	go func() {
		errCh <- dnsserver.New(dnsAddr, appState).Run(ctx)
	}()

	router := httpapi.NewRouter(appState)
	if cfg.HTTP.Enabled {
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		go func() {
			errCh <- httpapi.Serve(ctx, addr, router)
		}()
	}
	if cfg.HTTPS.Enabled {
		tlsConfig, err := tlsaccept.Build(cfg.HTTPS, dataDir)
		if err != nil {
			return err
		}
		addr := fmt.Sprintf(":%d", cfg.HTTPS.Port)
		go func() {
			errCh <- httpapi.ServeTLS(ctx, addr, router, tlsConfig)
		}()
	}

	if !cfg.Metrics.Disabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			errCh <- httpapi.Serve(ctx, cfg.Metrics.BindAddr, mux)
		}()
		logger.WithField("addr", cfg.Metrics.BindAddr).Info("metrics exporter listening")
	}

	if cfg.Anycast.Enabled {
		if err := startAnycast(ctx, cfg, appState); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		logger.WithField("uptime", durafmt.Parse(time.Since(start)).LimitFirstN(2)).
			Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}
}

func startAnycast(ctx context.Context, cfg *config.Config, appState *state.AppState) error {
	if len(cfg.Anycast.VIPs) == 0 || cfg.Anycast.PeerAddr == "" {
		return fmt.Errorf("anycast: vips and peer_addr are required when enabled")
	}
	routerID := cfg.Anycast.RouterID
	if routerID == "" {
		routerID = cfg.Anycast.VIPs[0]
	}

	speaker := anycast.NewBGPSpeaker()
	if err := speaker.Start(ctx, cfg.Anycast.ASN, cfg.Anycast.PeerASN, routerID, cfg.Anycast.PeerAddr); err != nil {
		return err
	}

	health := func(ctx context.Context) error {
		return appState.Store.Ping(ctx)
	}
	for _, vip := range cfg.Anycast.VIPs {
		mgr := anycast.NewManager(speaker, anycast.NewVIPBinder(cfg.Anycast.Interface), health, vip)
		if appState.Anycast == nil {
			appState.Anycast = mgr
		}
		go mgr.Run(ctx)
	}
	return nil
}
