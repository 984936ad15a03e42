// Package cfg holds the process configuration: flags with env fallback and
// startup validation. Precedence is cli flag > env var > default.
//
// Exemption entries are deliberately NOT validated here: a malformed entry
// fails closed at match time rather than failing startup, so a typo in one
// entry cannot take the whole service down.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/Ahuahuachi/PrivateBin/internal/log"
)

// Store backend names accepted by -store-backend.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
	StoreS3    = "s3"
)

type App struct {
	LogJSON  bool
	LogLevel string

	HTTPPort  int
	AdminPort int

	// admission gate
	Limit       int
	DataDir     string
	ExemptedIPs string
	IPHeader    string

	// table store backend
	StoreBackend string
	RedisAddr    string
	RedisDB      int
	S3Bucket     string
	S3Prefix     string

	// salt source
	SaltSSMParam string

	// flood protection (0 rate disables)
	FloodRate  float64
	FloodBurst int

	MaxPasteBytes int64

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64
}

// Register binds all config fields to the given FlagSet with defaults inline.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")

	fs.IntVar(&c.Limit, "limit", 10, "seconds between accepted pastes per client; <1 disables limiting")
	fs.StringVar(&c.DataDir, "data-dir", "./data", "directory for rate table, salt, and pastes")
	fs.StringVar(&c.ExemptedIPs, "exempted-ips", "", "comma-separated IPs or CIDR ranges exempt from the rate limit")
	fs.StringVar(&c.IPHeader, "ip-header", "", "request header to read the client address from (empty = connection remote address)")

	fs.StringVar(&c.StoreBackend, "store-backend", StoreFile, "rate table backend: file|redis|s3")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis host:port for -store-backend=redis")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "s3 bucket for -store-backend=s3")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "privatebin/ratetable", "s3 key prefix for -store-backend=s3")

	fs.StringVar(&c.SaltSSMParam, "salt-ssm-param", "", "SSM parameter holding the identity digest salt (empty = salt file in data dir)")

	fs.Float64Var(&c.FloodRate, "flood-rate", 10, "per-IP request rate for flood protection (0 disables)")
	fs.IntVar(&c.FloodBurst, "flood-burst", 30, "per-IP burst ceiling for flood protection")

	fs.Int64Var(&c.MaxPasteBytes, "max-paste-bytes", 2<<20, "maximum accepted paste body size")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from environment
// variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("DATA_DIR is required"))
	}

	switch c.StoreBackend {
	case StoreFile:
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR required when STORE_BACKEND=redis"))
		} else if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
	case StoreS3:
		if c.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("S3_BUCKET required when STORE_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE_BACKEND %q (must be file|redis|s3)", c.StoreBackend))
	}

	if c.FloodRate < 0 {
		errs = append(errs, fmt.Errorf("FLOOD_RATE must be >= 0 (got %v)", c.FloodRate))
	}
	if c.FloodRate > 0 && c.FloodBurst < 1 {
		errs = append(errs, fmt.Errorf("FLOOD_BURST must be >= 1 when FLOOD_RATE is set (got %d)", c.FloodBurst))
	}

	if c.MaxPasteBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_PASTE_BYTES must be >= 1 (got %d)", c.MaxPasteBytes))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
