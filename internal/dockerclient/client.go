// Package dockerclient wraps the Docker Engine API and the `docker compose`
// CLI for the operations TideWatch needs against a live daemon: inspecting
// running containers, invoking compose to recreate a service, execing into
// containers for health checks and database dumps, and running ephemeral
// helper containers for data backup/restore.
package dockerclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/moby/moby/client"
)

// Client wraps the Docker API client used by every stage of the update
// pipeline that needs to talk to the daemon directly (as opposed to going
// through the `docker compose` CLI).
type Client struct {
	api *client.Client
}

// TLSConfig holds paths to TLS material for connecting to a remote Docker
// daemon or socket proxy over mTLS.
type TLSConfig struct {
	CACert string
	ClientCert string
	ClientKey string
}

func (t *TLSConfig) loadTLS() (*tls.Config, error) {
	caCert, err := os.ReadFile(t.CACert)
	if err != nil {
		return nil, fmt.Errorf("read CA cert %s: %w", t.CACert, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("parse CA cert %s", t.CACert)
	}
	cert, err := tls.LoadX509KeyPair(t.ClientCert, t.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load client cert/key: %w", err)
	}
	return &tls.Config{
		RootCAs: pool,
		Certificates: []tls.Certificate{cert},
		MinVersion: tls.VersionTLS12,
	}, nil
}

// NewClient connects to dockerHost, which may be a unix socket path, a
// "unix://" URL, or a "tcp://"/"tcps://" URL for a remote daemon or socket
// proxy. tlsCfg is only consulted for TCP endpoints.
func NewClient(dockerHost string, tlsCfg *TLSConfig) (*Client, error) {
	var opts []client.Opt

	switch {
	case strings.HasPrefix(dockerHost, "tcp://"), strings.HasPrefix(dockerHost, "tcps://"):
		opts = append(opts, client.WithHost(dockerHost))
		if tlsCfg != nil && tlsCfg.CACert != "" && tlsCfg.ClientCert != "" && tlsCfg.ClientKey != "" {
			tlsConf, err := tlsCfg.loadTLS()
			if err != nil {
				return nil, fmt.Errorf("configure docker TLS: %w", err)
			}
			if u, err := url.Parse(dockerHost); err == nil {
				tlsConf.ServerName = u.Hostname()
			}
			opts = append(opts, client.WithHTTPClient(&http.Client{
				Transport: &http.Transport{
					TLSClientConfig: tlsConf,
					IdleConnTimeout: 90 * time.Second,
					TLSHandshakeTimeout: 10 * time.Second,
					ResponseHeaderTimeout: 30 * time.Second,
				},
			}))
		}
	case strings.HasPrefix(dockerHost, "unix://"):
		sock := strings.TrimPrefix(dockerHost, "unix://")
		opts = append(opts, client.WithHost(dockerHost), dialUnix(sock))
	default:
		opts = append(opts, client.WithHost("unix://"+dockerHost), dialUnix(dockerHost))
	}

	api, err := client.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

func dialUnix(sock string) client.Opt {
	return client.WithHTTPClient(&http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.DialTimeout("unix", sock, 30*time.Second)
			},
		},
	})
}

// Ping checks that the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.Ping(ctx, client.PingOptions{})
	return err
}

// Close releases client resources.
func (c *Client) Close() error { return c.api.Close() }
