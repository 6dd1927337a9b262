// Package nats carries chat change events over NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/pkg/logger"
)

const (
	clientName      = "chat-service"
	defaultTimeout  = 5 * time.Second
	reconnectWait   = 2 * time.Second
	reconnectBuffer = 8 << 20
)

// Config holds NATS connection configuration. TLS is enabled when all of
// CAFile, CertFile and KeyFile are set.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

func (cfg Config) tls() bool {
	return cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != ""
}

// Client owns the NATS connection and its JetStream handle.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

func (cfg Config) options(ctx context.Context, log *logger.Logger) []nats.Option {
	timeout := defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	opts := []nats.Option{
		nats.Name(clientName),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.ReconnectBufSize(reconnectBuffer),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("NATS async error", fields...)
		}),
	}
	if cfg.tls() {
		opts = append(opts,
			nats.RootCAs(cfg.CAFile),
			nats.ClientCert(cfg.CertFile, cfg.KeyFile),
		)
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	return opts
}

// Connect dials the server and opens a JetStream handle. The dial timeout
// follows ctx's deadline when it has one.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.URL, cfg.options(ctx, log)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log.Info("connected to NATS",
		zap.String("url", nc.ConnectedUrl()),
		zap.Bool("tls", cfg.tls()),
	)
	return &Client{conn: nc, js: js, logger: log}, nil
}

// JetStream returns the JetStream handle.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Ping round-trips to the server. Used by readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errors.New("not connected")
	}
	if !c.conn.IsConnected() {
		return fmt.Errorf("connection %s", c.conn.Status())
	}
	return c.conn.FlushWithContext(ctx)
}

// Close drains pending publishes, then closes the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	stats := c.conn.Stats()
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed", zap.Error(err))
		c.conn.Close()
		return
	}
	c.logger.Info("NATS connection drained",
		zap.Uint64("msgs_out", stats.OutMsgs),
		zap.Uint64("msgs_in", stats.InMsgs),
		zap.Uint64("reconnects", stats.Reconnects),
	)
}
