// Package config loads the TOML startup configuration, applying defaults
// declared as struct tags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/pkarrdns/pkarrdns/internal/log"
)

// CertMode selects how the HTTPS listener obtains its certificate.
type CertMode string

const (
	CertModeManual      CertMode = "manual"
	CertModeSelfSigned  CertMode = "self_signed"
	CertModeLetsEncrypt CertMode = "lets_encrypt"
)

// HTTPConfig configures the optional plaintext HTTP listener. Enabled is
// derived from the section's presence in the TOML file.
type HTTPConfig struct {
	Enabled bool `toml:"-"`
	Port    int  `toml:"port" default:"8080"`
}

// HTTPSConfig configures the optional TLS listener.
type HTTPSConfig struct {
	Enabled            bool     `toml:"-"`
	Port               int      `toml:"port" default:"8443"`
	Domains            []string `toml:"domains"`
	CertMode           CertMode `toml:"cert_mode" default:"self_signed"`
	CertFile           string   `toml:"cert_file"`
	KeyFile            string   `toml:"key_file"`
	LetsEncryptContact string   `toml:"letsencrypt_contact"`
	LetsEncryptProd    bool     `toml:"letsencrypt_prod"`
}

// DNSConfig configures the authoritative DNS listener and its zones.
type DNSConfig struct {
	Port            int      `toml:"port" default:"53"`
	DefaultSOA      string   `toml:"default_soa" default:"ns1.irohdns.example. hostmaster.irohdns.example."`
	DefaultTTL      uint32   `toml:"default_ttl" default:"300"`
	Origins         []string `toml:"origins"`
	RRA             string   `toml:"rr_a"`
	RRAAAA          string   `toml:"rr_aaaa"`
	RRNS            []string `toml:"rr_ns"`
	SOATTL          uint32   `toml:"soa_ttl" default:"300"`
	NSTTL           uint32   `toml:"ns_ttl" default:"300"`
	ATTL            uint32   `toml:"a_ttl" default:"300"`
	Serial          uint32   `toml:"serial" default:"1"`
	MaxZones        int      `toml:"max_zones" default:"100000"`
	AllowRootOrigin bool     `toml:"allow_root_origin"`
	ZoneFile        string   `toml:"zone_file"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Disabled bool   `toml:"disabled"`
	BindAddr string `toml:"bind_addr" default:"127.0.0.1:9090"`
}

// AnycastConfig configures the optional BGP VIP advertisement; disabled
// unless explicitly turned on.
type AnycastConfig struct {
	Enabled   bool     `toml:"enabled"`
	VIPs      []string `toml:"vips"`
	ASN       uint32   `toml:"asn" default:"65001"`
	PeerASN   uint32   `toml:"peer_asn" default:"65000"`
	RouterID  string   `toml:"router_id"`
	PeerAddr  string   `toml:"peer_addr"`
	Interface string   `toml:"interface" default:"lo"`
}

// XCacheConfig configures the optional cross-node Redis invalidation bus.
type XCacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr" default:"127.0.0.1:6379"`
}

// AuditLogConfig configures the optional durable Postgres publish audit log.
type AuditLogConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

// Config is the top-level startup configuration, decoded from TOML.
type Config struct {
	HTTP     HTTPConfig     `toml:"http"`
	HTTPS    HTTPSConfig    `toml:"https"`
	DNS      DNSConfig      `toml:"dns"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Anycast  AnycastConfig  `toml:"anycast"`
	XCache   XCacheConfig   `toml:"xcache"`
	AuditLog AuditLogConfig `toml:"audit_log"`
	Log      log.Config     `toml:"log"`
	DataDir  string         `toml:"data_dir"`
}

// defaultOrigins is used when [dns].origins is empty.
var defaultOrigins = []string{"irohdns.example.", "."}

// Load reads and decodes the TOML file at path, applies struct-tag
// defaults to any zero-valued field, and validates the result. The HTTP
// and HTTPS listeners are enabled by their section's presence in the file.
func Load(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.HTTP.Enabled = md.IsDefined("http")
	cfg.HTTPS.Enabled = md.IsDefined("https")
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("config: apply defaults: %w", err)
	}
	if len(cfg.DNS.Origins) == 0 {
		cfg.DNS.Origins = append([]string{}, defaultOrigins...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StoreFileName is the single KV file holding every signed packet.
const StoreFileName = "signed-packets-1.db"

// ResolveDataDir picks the persistent-state directory: the explicit
// data_dir setting, then $IROH_DNS_DATA_DIR, then the OS user config dir,
// each suffixed with "iroh-dns" except the explicit setting.
func (c *Config) ResolveDataDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	if env := os.Getenv("IROH_DNS_DATA_DIR"); env != "" {
		return filepath.Join(env, "iroh-dns"), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve data dir: %w", err)
	}
	return filepath.Join(base, "iroh-dns"), nil
}

// StorePath returns the signed-packet store's file path under dataDir.
func StorePath(dataDir string) string {
	return filepath.Join(dataDir, StoreFileName)
}

func (c *Config) validate() error {
	if len(c.DNS.Origins) == 0 {
		return fmt.Errorf("config: at least one [dns] origin is required")
	}
	if len(c.DNS.Origins) == 1 && c.DNS.Origins[0] == "." && !c.DNS.AllowRootOrigin {
		return fmt.Errorf("config: root origin \".\" configured alone requires dns.allow_root_origin = true to acknowledge the catch-all risk")
	}
	return nil
}
