package config

import (
	"github.com/vinayprograms/threadkit/bus"
)

// NATSBusConfig maps the [nats] section onto a bus configuration.
func (c *Config) NATSBusConfig() bus.NATSConfig {
	cfg := bus.DefaultNATSConfig()
	if c.NATS.URL != "" {
		cfg.URL = c.NATS.URL
	}
	cfg.Name = c.NATS.Name
	return cfg
}

// RedisBusConfig maps the [redis] section onto a bus configuration.
func (c *Config) RedisBusConfig() bus.RedisConfig {
	cfg := bus.DefaultRedisConfig()
	if c.Redis.Addr != "" {
		cfg.Addr = c.Redis.Addr
	}
	cfg.Password = c.Redis.Password
	cfg.DB = c.Redis.DB
	return cfg
}

// OpenBus connects the bus named by introspect.bus. It returns nil and no
// error when the bus is "none" or unset.
func (c *Config) OpenBus() (bus.MessageBus, error) {
	switch c.Introspect.Bus {
	case "memory":
		return bus.NewMemoryBus(bus.DefaultConfig()), nil
	case "nats":
		b, err := bus.NewNATSBus(c.NATSBusConfig())
		if err != nil {
			return nil, err
		}
		return b, nil
	case "redis":
		b, err := bus.NewRedisBus(c.RedisBusConfig())
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, nil
	}
}
