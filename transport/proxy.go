package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// ProxyConfig describes an upstream SOCKS5 proxy, typically a local Tor
// daemon on 127.0.0.1:9050.
type ProxyConfig struct {
	Address  string
	Username string
	Password string
}

// newSOCKS5Dialer builds a context-aware dialer that tunnels through the
// configured proxy.
func newSOCKS5Dialer(config *ProxyConfig) (proxy.ContextDialer, error) {
	if config == nil || config.Address == "" {
		return nil, fmt.Errorf("%w: proxy address cannot be empty", ErrTransport)
	}

	var auth *proxy.Auth
	if config.Username != "" || config.Password != "" {
		auth = &proxy.Auth{
			User:     config.Username,
			Password: config.Password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", config.Address, auth, &net.Dialer{})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "newSOCKS5Dialer",
			"proxy_addr": config.Address,
			"error":      err.Error(),
		}).Error("Failed to create SOCKS5 dialer")
		return nil, fmt.Errorf("%w: create SOCKS5 dialer: %w", ErrTransport, err)
	}

	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("%w: SOCKS5 dialer does not support contexts", ErrTransport)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "newSOCKS5Dialer",
		"proxy_addr": config.Address,
		"auth":       auth != nil,
	}).Info("SOCKS5 proxy configured")

	return cd, nil
}

// directDialer adapts net.Dialer to proxy.ContextDialer.
type directDialer struct {
	net.Dialer
}

func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.Dialer.DialContext(ctx, network, address)
}
