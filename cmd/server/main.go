package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Ahuahuachi/PrivateBin/internal/cfg"
	"github.com/Ahuahuachi/PrivateBin/internal/flood"
	"github.com/Ahuahuachi/PrivateBin/internal/health"
	"github.com/Ahuahuachi/PrivateBin/internal/httpmw"
	"github.com/Ahuahuachi/PrivateBin/internal/httpserver"
	"github.com/Ahuahuachi/PrivateBin/internal/log"
	"github.com/Ahuahuachi/PrivateBin/internal/metrics"
	"github.com/Ahuahuachi/PrivateBin/internal/opshttp"
	"github.com/Ahuahuachi/PrivateBin/internal/otelx"
	"github.com/Ahuahuachi/PrivateBin/internal/pastehttp"
	"github.com/Ahuahuachi/PrivateBin/internal/prof"
	"github.com/Ahuahuachi/PrivateBin/internal/salt"
	"github.com/Ahuahuachi/PrivateBin/internal/tablestore"
	"github.com/Ahuahuachi/PrivateBin/internal/traffic"
	v "github.com/Ahuahuachi/PrivateBin/internal/version"
)

// rateTableName is the store name the limiter hands to its table store. The
// file backend turns it into a file under -data-dir, redis into a hash key,
// s3 into an object key.
const rateTableName = "traffic_limiter"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, build_date=%s, go=%s, dirty=%v)\n",
			v.AppName, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix PRIVATEBIN_ and validate
	cfg.FillFromEnv(flag.CommandLine, "PRIVATEBIN_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:        v.AppName,
		Version:    vi.Version,
		Level:      lvl,
		JsonFormat: conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"limit", conf.Limit,
		"store_backend", conf.StoreBackend,
		"data_dir", conf.DataDir,
		"ip_header", conf.IPHeader,
		"flood_rate", conf.FloodRate,
		"flood_burst", conf.FloodBurst,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we only write to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  v.AppName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(vi)

	// AWS clients are only constructed when a component needs them
	needAWS := conf.StoreBackend == cfg.StoreS3 || conf.SaltSSMParam != ""
	var s3Client *s3.Client
	var ssmClient *ssm.Client
	if needAWS {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		if conf.StoreBackend == cfg.StoreS3 {
			s3Client = s3.NewFromConfig(awsCfg)
		}
		if conf.SaltSSMParam != "" {
			ssmClient = ssm.NewFromConfig(awsCfg)
		}
	}

	// Salt provider: SSM when configured, otherwise a file under the data dir.
	var saltProvider salt.Provider
	if conf.SaltSSMParam != "" {
		saltProvider = salt.SSMProvider{Client: ssmClient, Param: conf.SaltSSMParam}
	} else {
		saltProvider = salt.FileProvider{Path: filepath.Join(conf.DataDir, "salt")}
	}
	secret, err := saltProvider.Secret(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to provision digest salt")
		os.Exit(1)
	}

	// Table store backend
	var store traffic.Store
	switch conf.StoreBackend {
	case cfg.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr: conf.RedisAddr,
			DB:   conf.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			L.Error(ctx, err, "redis ping failed", "redis_addr", conf.RedisAddr)
			os.Exit(1)
		}
		store = tablestore.NewRedisStore(rdb, "")
	case cfg.StoreS3:
		store = tablestore.NewS3Store(s3Client, conf.S3Bucket, conf.S3Prefix)
	default:
		fs, err := tablestore.NewFileStore(conf.DataDir)
		if err != nil {
			L.Error(ctx, err, "failed to create file table store", "data_dir", conf.DataDir)
			os.Exit(1)
		}
		store = fs
	}

	// Admission gate
	limiter := traffic.New(traffic.Config{
		Limit:     conf.Limit,
		Exempted:  traffic.ParseExempted(conf.ExemptedIPs),
		StoreName: rateTableName,
	}, store, secret)

	gateMW := limiter.Middleware(traffic.MiddlewareOptions{
		OnDecision: func(d traffic.Decision, digest string) {
			m.IncAdmission(d.String())
			m.SetTableEntries(limiter.TableEntries())
			L.Debug(ctx, "admission decision", "decision", d.String(), "client_digest", digest)
		},
		OnFirstDenied: func(digest string) {
			L.Warn(ctx, "submission denied by admission gate", "client_digest", digest)
		},
		OnError: func(err error) {
			m.IncStoreFailure()
			L.Error(ctx, err, "admission check failed")
		},
	})

	// Per-IP burst protection in front of the gate (0 rate disables)
	var floodMW func(http.Handler) http.Handler
	if conf.FloodRate > 0 {
		guard := flood.New(ctx,
			flood.WithRate(conf.FloodRate, conf.FloodBurst),
			flood.WithOnDenied(func(ip string) {
				m.IncFloodDenied()
			}),
			flood.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "flood protection triggered",
					"client_digest", limiter.Digest(ip, traffic.AlgoStrong))
			}),
		)
		floodMW = guard.Middleware
	}

	// Paste surface
	pasteStore, err := pastehttp.NewStore(filepath.Join(conf.DataDir, "pastes"))
	if err != nil {
		L.Error(ctx, err, "failed to create paste store")
		os.Exit(1)
	}
	pasteAPI := pastehttp.NewAPI(pasteStore, L)
	pasteAPI.OnAccepted = m.IncPasteAccepted

	// Readiness fails during drain so the load balancer stops sending traffic
	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:    L,
		Port:      conf.HTTPPort,
		Health:    health.Fixed(true, ""),
		Readiness: readiness,
		Routes: func(r chi.Router, g func(http.Handler) http.Handler) {
			pasteAPI.RegisterRoutes(r, g)
		},
		GateMW:  gateMW,
		FloodMW: floodMW,
		ClientAddrOpts: httpmw.ClientAddrOptions{
			Header: conf.IPHeader,
		},
		MaxBodyBytes: conf.MaxPasteBytes,
		MetricsMW:    m.Middleware,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// Admin listener for metrics, health checks, and pprof
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd kills the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness to drain connections before closing listeners
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(10 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when we run under type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
