package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"screenlink/internal/agent"
	"screenlink/internal/core/domain"
	"screenlink/internal/core/ports"
	"screenlink/internal/core/services"
	handlers "screenlink/internal/handlers/http"
	"screenlink/internal/infrastructure/capture"
	"screenlink/internal/infrastructure/input"
	"screenlink/internal/infrastructure/middleware"
	"screenlink/internal/infrastructure/monitoring"
	"screenlink/internal/infrastructure/secrets"
	signaling "screenlink/internal/infrastructure/signal"
	rtc "screenlink/internal/infrastructure/webrtc"
	"screenlink/pkg/config"
	"screenlink/pkg/logger"
	"screenlink/pkg/tracing"
	"screenlink/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zlog.Sync() //nolint:errcheck
	sugar := zlog.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "screenlink-agent",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		sugar.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	stateDir := resolveStateDir(cfg.Identity.SecretPath)
	secretStore, err := secrets.NewFileStore(filepath.Join(stateDir, "secrets.json"))
	if err != nil {
		sugar.Fatalw("failed to open secret store", "error", err)
	}

	pcID := cfg.Identity.PCID
	if pcID == "" {
		pcID, err = utils.MachineID(filepath.Join(stateDir, "machine-id"))
		if err != nil {
			sugar.Fatalw("failed to determine machine id", "error", err)
		}
	}
	pcName := cfg.Identity.PCName
	if pcName == "" {
		pcName = utils.HostName()
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewPrometheusCollector(registry)

	grabber, err := capture.NewDisplayGrabber(cfg.Stream.CaptureMonitor)
	if err != nil {
		sugar.Fatalw("failed to open display", "monitor", cfg.Stream.CaptureMonitor, "error", err)
	}
	bounds := grabber.Bounds()

	manager := rtc.NewManager(rtc.Deps{
		ICEServers: cfg.WebRTC.ICEServers,
		NewSource: func(quality domain.QualityProfile) (ports.CaptureSource, error) {
			return capture.NewSource(grabber, quality, sugar), nil
		},
		NewEncoder: func(quality domain.QualityProfile) (ports.VideoEncoder, error) {
			return capture.NewVP8Encoder(quality)
		},
		Metrics:      metrics,
		Logger:       sugar,
		ScreenWidth:  bounds.Dx(),
		ScreenHeight: bounds.Dy(),
	})

	driver := input.NewExecDriver(sugar)
	inputRouter := services.NewInputService(
		driver,
		bounds.Dx(), bounds.Dy(),
		cfg.Input.MovesPerSecond, cfg.Input.MoveBurst,
		metrics, sugar,
	)
	inputRouter.SetEnabled(cfg.Input.Enabled)

	initial := domain.ProfileFromName(cfg.Stream.InitialQuality)
	inputRouter.SetStreamSize(initial.Width, initial.Height)

	newSignaling := func(token, userID string) ports.SignalingClient {
		return signaling.NewClient(signaling.Options{
			URL: cfg.Server.URL,
			Auth: signaling.Auth{
				Token:  token,
				PCID:   pcID,
				PCName: pcName,
				UserID: firstNonEmpty(cfg.Identity.UserID, userID),
			},
			ConnectTimeout:    cfg.Server.ConnectTimeout,
			ReconnectInterval: cfg.Stream.ReconnectInterval,
		}, metrics, sugar)
	}

	ag := agent.New(newSignaling, manager, inputRouter, secretStore, sugar)
	manager.SetCandidateSink(func(viewerID domain.ViewerID, candidate domain.ICECandidate) {
		if client := ag.Signaling(); client != nil {
			if err := client.EmitICECandidate(viewerID, candidate); err != nil {
				sugar.Warnw("failed to emit ice candidate", "viewer_id", viewerID, "error", err)
			}
		}
	})

	if cfg.Control.Enabled {
		metricsRegistry := registry
		if !cfg.Monitoring.PrometheusEnabled {
			metricsRegistry = nil
		}
		go serveControl(cfg, ag, inputRouter, secretStore, metricsRegistry, sugar)
	}

	ctx, stop := signalContext()
	defer stop()

	if err := ag.Start(ctx); err != nil {
		if err == domain.ErrNoAuthToken {
			sugar.Warnw("no auth token stored; waiting for login via control api",
				"control_address", cfg.Control.Address)
			<-ctx.Done()
		} else {
			sugar.Fatalw("failed to start agent", "error", err)
		}
	} else {
		sugar.Infow("screenlink agent running",
			"pc_id", pcID,
			"pc_name", pcName,
			"server", cfg.Server.URL,
			"screen", bounds.String(),
		)
		_ = ag.Wait(ctx)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ag.Stop(shutdownCtx)
}

func loadConfig(explicit string) (*config.Config, error) {
	if explicit != "" {
		return config.Load(explicit)
	}
	for _, path := range []string{"configs/config.yaml", "config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	return config.Load("")
}

func resolveStateDir(configured string) string {
	if configured != "" {
		return configured
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, "screenlink")
}

func serveControl(
	cfg *config.Config,
	ag *agent.Agent,
	inputRouter ports.InputRouter,
	secretStore ports.SecretStore,
	registry *prometheus.Registry,
	sugar *zap.SugaredLogger,
) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(sugar), middleware.Tracing())

	handler := handlers.NewControlHandler(ag, inputRouter, secretStore, registry, sugar)
	handler.SetupRoutes(router)

	sugar.Infow("control api listening", "address", cfg.Control.Address)
	if err := http.ListenAndServe(cfg.Control.Address, router); err != nil {
		sugar.Errorw("control api failed", "error", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
