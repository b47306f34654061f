package config

import "time"

// Default configuration values.
const (
	DefaultInterface          = "eth0"
	DefaultBindAddress        = "0.0.0.0:67"
	DefaultServerIP           = "192.168.1.67"
	DefaultLogLevel           = "info"
	DefaultSubnetMask         = "255.255.255.0"
	DefaultLeaseTime          = 24 * time.Hour
	DefaultRangeStart         = "192.168.1.101"
	DefaultRateLimitDiscovers = 100
	DefaultRateLimitPerMAC    = 5
)
