// Package config handles TOML configuration parsing and validation for pxe-dhcpd.
package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/miekg/dns"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/pool"
	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// Config is the top-level configuration for pxe-dhcpd.
type Config struct {
	Server ServerConfig `toml:"server"`
	Lease  LeaseConfig  `toml:"lease"`
	Boot   BootConfig   `toml:"boot"`
}

// ServerConfig holds core server settings.
type ServerConfig struct {
	Interface   string          `toml:"interface"`
	BindAddress string          `toml:"bind_address"`
	ServerIP    string          `toml:"server_ip"`
	LogLevel    string          `toml:"log_level"`
	AuditDB     string          `toml:"audit_db"`
	APIListen   string          `toml:"api_listen"` // status API and /metrics; empty disables
	RateLimit   RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig holds anti-starvation settings (RFC 5765).
type RateLimitConfig struct {
	Enabled               bool `toml:"enabled"`
	MaxDiscoversPerSecond int  `toml:"max_discovers_per_second"`
	MaxPerMACPerSecond    int  `toml:"max_per_mac_per_second"`
}

// LeaseConfig describes the address pool and what clients are told about it.
type LeaseConfig struct {
	SubnetMask string `toml:"subnet_mask"`
	LeaseTime  string `toml:"lease_time"`
	RangeStart string `toml:"range_start"`
	RangeEnd   string `toml:"range_end"`
}

// BootConfig holds the network boot parameters handed to PXE clients.
type BootConfig struct {
	TFTPServer string `toml:"tftp_server"`
	BootFile   string `toml:"boot_file"`
	NextServer string `toml:"next_server"`
}

// Load reads and parses a TOML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Interface == "" {
		cfg.Server.Interface = DefaultInterface
	}
	if cfg.Server.BindAddress == "" {
		cfg.Server.BindAddress = DefaultBindAddress
	}
	if cfg.Server.ServerIP == "" {
		cfg.Server.ServerIP = DefaultServerIP
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}
	if cfg.Server.RateLimit.MaxDiscoversPerSecond == 0 {
		cfg.Server.RateLimit.MaxDiscoversPerSecond = DefaultRateLimitDiscovers
	}
	if cfg.Server.RateLimit.MaxPerMACPerSecond == 0 {
		cfg.Server.RateLimit.MaxPerMACPerSecond = DefaultRateLimitPerMAC
	}

	if cfg.Lease.SubnetMask == "" {
		cfg.Lease.SubnetMask = DefaultSubnetMask
	}
	if cfg.Lease.LeaseTime == "" {
		cfg.Lease.LeaseTime = DefaultLeaseTime.String()
	}
	if cfg.Lease.RangeStart == "" {
		cfg.Lease.RangeStart = DefaultRangeStart
	}
	// A pool of one address unless an end is given.
	if cfg.Lease.RangeEnd == "" {
		cfg.Lease.RangeEnd = cfg.Lease.RangeStart
	}
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	if _, _, err := net.SplitHostPort(cfg.Server.BindAddress); err != nil {
		return fmt.Errorf("server.bind_address %q: %w", cfg.Server.BindAddress, err)
	}
	serverIP := parseIPv4(cfg.Server.ServerIP)
	if serverIP == nil {
		return fmt.Errorf("server.server_ip %q is not a valid IPv4 address", cfg.Server.ServerIP)
	}
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("server.log_level must be debug, info, warn, or error, got %q", cfg.Server.LogLevel)
	}
	if cfg.Server.APIListen != "" {
		if _, _, err := net.SplitHostPort(cfg.Server.APIListen); err != nil {
			return fmt.Errorf("server.api_listen %q: %w", cfg.Server.APIListen, err)
		}
	}
	if rl := cfg.Server.RateLimit; rl.MaxDiscoversPerSecond < 0 || rl.MaxPerMACPerSecond < 0 {
		return fmt.Errorf("server.rate_limit: limits must not be negative")
	}

	// Lease settings
	mask := parseIPv4(cfg.Lease.SubnetMask)
	if mask == nil {
		return fmt.Errorf("lease.subnet_mask %q is not a valid IPv4 address", cfg.Lease.SubnetMask)
	}
	if ones, bits := net.IPMask(mask).Size(); ones == 0 && bits == 0 {
		return fmt.Errorf("lease.subnet_mask %q is not a contiguous mask", cfg.Lease.SubnetMask)
	}
	leaseTime, err := time.ParseDuration(cfg.Lease.LeaseTime)
	if err != nil {
		return fmt.Errorf("lease.lease_time: %w", err)
	}
	if leaseTime < time.Second || leaseTime.Seconds() > math.MaxUint32 {
		return fmt.Errorf("lease.lease_time %s is out of range", leaseTime)
	}

	start := parseIPv4(cfg.Lease.RangeStart)
	if start == nil {
		return fmt.Errorf("lease.range_start %q is not a valid IPv4 address", cfg.Lease.RangeStart)
	}
	end := parseIPv4(cfg.Lease.RangeEnd)
	if end == nil {
		return fmt.Errorf("lease.range_end %q is not a valid IPv4 address", cfg.Lease.RangeEnd)
	}
	size := dhcpv4.IPRangeSize(start, end)
	if size == 0 {
		return fmt.Errorf("lease: range_end %s is before range_start %s", end, start)
	}
	if size > pool.MaxEntries {
		return fmt.Errorf("lease: range %s-%s holds %d addresses, maximum is %d", start, end, size, pool.MaxEntries)
	}
	network := &net.IPNet{IP: serverIP.Mask(net.IPMask(mask)), Mask: net.IPMask(mask)}
	if !network.Contains(start) || !network.Contains(end) {
		return fmt.Errorf("lease: range %s-%s is not in network %s", start, end, network)
	}

	// Boot settings
	if name := cfg.Boot.TFTPServer; name != "" {
		if net.ParseIP(name) == nil {
			if _, ok := dns.IsDomainName(name); !ok {
				return fmt.Errorf("boot.tftp_server %q is neither an IP address nor a domain name", name)
			}
		}
		if len(name) > 255 {
			return fmt.Errorf("boot.tftp_server is longer than 255 bytes")
		}
	}
	if len(cfg.Boot.BootFile) > 255 {
		return fmt.Errorf("boot.boot_file is longer than 255 bytes")
	}
	if cfg.Boot.NextServer != "" && parseIPv4(cfg.Boot.NextServer) == nil {
		return fmt.Errorf("boot.next_server %q is not a valid IPv4 address", cfg.Boot.NextServer)
	}

	return nil
}

func parseIPv4(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil
	}
	return ip.To4()
}

// ServerIP returns the parsed server identifier IP.
func (cfg *Config) ServerIP() net.IP {
	return parseIPv4(cfg.Server.ServerIP)
}

// SubnetMask returns the mask sent in option 1.
func (cfg *Config) SubnetMask() net.IPMask {
	ip := parseIPv4(cfg.Lease.SubnetMask)
	if ip == nil {
		return nil
	}
	return net.IPMask(ip)
}

// LeaseTime returns the lease duration sent in option 51.
func (cfg *Config) LeaseTime() time.Duration {
	d, err := time.ParseDuration(cfg.Lease.LeaseTime)
	if err != nil {
		return DefaultLeaseTime
	}
	return d
}

// RangeStart returns the first pool address.
func (cfg *Config) RangeStart() net.IP {
	return parseIPv4(cfg.Lease.RangeStart)
}

// RangeEnd returns the last pool address.
func (cfg *Config) RangeEnd() net.IP {
	return parseIPv4(cfg.Lease.RangeEnd)
}

// NextServer returns the siaddr written into replies: boot.next_server when
// set, otherwise the server IP.
func (cfg *Config) NextServer() net.IP {
	if ip := parseIPv4(cfg.Boot.NextServer); ip != nil {
		return ip
	}
	return cfg.ServerIP()
}
