package natsclient

import (
	"log/slog"
	"time"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/metric"
)

// ClientOption configures a Client. An option returns an error when its
// argument is out of range; NewClient reports it as invalid.
type ClientOption func(*Client) error

func durationOption(name string, d time.Duration, set func(*Client, time.Duration)) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.Detail(errors.ErrInvalidConfig, "%s must be positive, got %s", name, d)
		}
		set(c, d)
		return nil
	}
}

// WithLogger sets the client logger; nil keeps the default
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMetrics reports connection status and reconnects to registry
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		c.metrics = registry.CoreMetrics()
		return nil
	}
}

// WithMaxReconnects caps reconnection attempts; -1 retries forever
func WithMaxReconnects(limit int) ClientOption {
	return func(c *Client) error {
		if limit < -1 {
			return errors.Detail(errors.ErrInvalidConfig, "max reconnects %d below -1", limit)
		}
		c.maxReconnects = limit
		return nil
	}
}

// WithReconnectWait sets the pause between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return durationOption("reconnect wait", d, func(c *Client, d time.Duration) { c.reconnectWait = d })
}

// WithPingInterval sets how often the server is pinged
func WithPingInterval(d time.Duration) ClientOption {
	return durationOption("ping interval", d, func(c *Client, d time.Duration) { c.pingInterval = d })
}

// WithTimeout bounds the initial dial
func WithTimeout(d time.Duration) ClientOption {
	return durationOption("timeout", d, func(c *Client, d time.Duration) { c.timeout = d })
}

// WithDrainTimeout bounds draining on Close
func WithDrainTimeout(d time.Duration) ClientOption {
	return durationOption("drain timeout", d, func(c *Client, d time.Duration) { c.drainTimeout = d })
}

// WithMaxBackoff caps the circuit breaker's wait; anything under a second
// falls back to one minute
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < time.Second {
			d = time.Minute
		}
		c.maxBackoff = d
		return nil
	}
}

// WithCircuitBreakerThreshold opens the circuit after threshold consecutive
// failures; values below 1 fall back to 5
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			threshold = 5
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithHealthChangeCallback is called with true on connect and false when a
// connected client loses its link
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithCredentials authenticates with a user and password
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" {
			return errors.Detail(errors.ErrMissingConfig, "username")
		}
		c.username, c.password = username, password
		return nil
	}
}

// WithToken authenticates with a token
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithName sets the connection name shown by the server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}
