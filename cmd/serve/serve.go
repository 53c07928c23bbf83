package serve

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdlisten "github.com/jdthomas/warp/cmd/internal/listen"
	"github.com/jdthomas/warp/gateway"
	"github.com/jdthomas/warp/terminator"
	"github.com/jdthomas/warp/timing"
	"github.com/jdthomas/warp/util/doh"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func Generate() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "terminate TLS on the listen addresses",
		Description: `Accept connections on every listen address and terminate TLS on them. The handshake runs on first use of each connection.

	Without an upstream, decrypted connections are served over HTTP/1.1 or HTTP/2 (picked by ALPN) by a built-in status handler.
	With an upstream, decrypted bytes are piped to it unchanged. Upstreams may be host:port or pipe://path for a unix socket or Windows named pipe.

	Flags override the values in the config file.`,
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to a YAML config file",
				EnvVars:  []string{"WARP_CONFIG"},
				Category: "Server Options",
			},
			&cli.StringFlag{
				Name:        "sentry",
				DefaultText: "https://public@sentry.example.com/1",
				Usage:       "Sentry DSN for error monitoring. Alternatively, you can set the DSN via the environment variable SENTRY_DSN",
				EnvVars:     []string{"SENTRY_DSN"},
				Category:    "Server Options",
			},

			&cli.StringSliceFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Value:   cli.NewStringSlice("0.0.0.0:8443"),
				Usage: `Address and port to accept connections on. Can be repeated.
			pipe://path listens on a unix socket or Windows named pipe instead`,
				Category: "Network Options",
			},
			&cli.BoolFlag{
				Name:     "proxy-protocol",
				Usage:    "Expect a PROXY protocol header on every connection so the client address survives a load balancer",
				Category: "Network Options",
			},

			&cli.PathFlag{
				Name:     "cert",
				Usage:    "Path to the PEM certificate chain, leaf first",
				Category: "TLS Options",
			},
			&cli.PathFlag{
				Name:     "key",
				Usage:    "Path to the PEM private key for the leaf certificate",
				Category: "TLS Options",
			},
			&cli.BoolFlag{
				Name:     "self-signed",
				Usage:    "Generate a throwaway self-signed certificate for the given hostnames instead of loading one",
				Category: "TLS Options",
			},
			&cli.StringSliceFlag{
				Name:     "hostname",
				Usage:    "Hostname or IP to include in the self-signed certificate. Can be repeated",
				Category: "TLS Options",
			},
			&cli.StringFlag{
				Name:        "client-auth",
				DefaultText: "off",
				Usage:       "Client certificate mode: off, optional, or required",
				Category:    "TLS Options",
			},
			&cli.PathFlag{
				Name:     "client-ca",
				Usage:    "Path to PEM trust anchors for verifying client certificates",
				Category: "TLS Options",
			},
			&cli.PathFlag{
				Name:     "ocsp",
				Usage:    "Path to a DER encoded OCSP response to staple",
				Category: "TLS Options",
			},
			&cli.DurationFlag{
				Name:        "handshake-timeout",
				DefaultText: timing.TLSHandshakeTimeout.String(),
				Usage:       "Time allowed for a client to complete the TLS handshake",
				Category:    "TLS Options",
			},

			&cli.StringFlag{
				Name:     "upstream",
				Usage:    "Forward decrypted connections to host:port or pipe://path instead of serving HTTP",
				Category: "Upstream Options",
			},
			&cli.StringFlag{
				Name:        "doh",
				DefaultText: doh.DefaultEndpoint,
				Usage:       "Resolve upstream hostnames with this DNS over HTTPS endpoint instead of the system resolver",
				Category:    "Upstream Options",
			},
			&cli.UintFlag{
				Name:        "dial-attempts",
				DefaultText: fmt.Sprint(gateway.DefaultDialAttempts),
				Usage:       "Attempts at dialing the upstream before dropping a connection",
				Category:    "Upstream Options",
			},
		},
		Action: cmdServe,
	}
}

// configFromContext loads the config file if one is given and lays the
// explicitly set flags over it.
func configFromContext(ctx *cli.Context) (*Config, error) {
	c := &Config{}
	if ctx.IsSet("config") {
		var err error
		c, err = NewConfig(ctx.Path("config"))
		if err != nil {
			return nil, err
		}
	}

	if ctx.IsSet("listen") || len(c.Listen) == 0 {
		c.Listen = ctx.StringSlice("listen")
	}
	if ctx.IsSet("proxy-protocol") {
		c.ProxyProtocol = ctx.Bool("proxy-protocol")
	}
	if ctx.IsSet("cert") {
		c.Cert = ctx.Path("cert")
	}
	if ctx.IsSet("key") {
		c.Key = ctx.Path("key")
	}
	if ctx.IsSet("self-signed") {
		c.SelfSigned = ctx.Bool("self-signed")
	}
	if ctx.IsSet("hostname") {
		c.Hostnames = ctx.StringSlice("hostname")
	}
	if ctx.IsSet("client-auth") {
		c.ClientAuth = ctx.String("client-auth")
	}
	if ctx.IsSet("client-ca") {
		c.ClientCA = ctx.Path("client-ca")
	}
	if ctx.IsSet("ocsp") {
		c.OCSP = ctx.Path("ocsp")
	}
	if ctx.IsSet("handshake-timeout") {
		c.HandshakeTimeout = ctx.Duration("handshake-timeout")
	}
	if ctx.IsSet("upstream") {
		c.Upstream = ctx.String("upstream")
	}
	if ctx.IsSet("doh") {
		c.DoH = ctx.String("doh")
	}
	if ctx.IsSet("dial-attempts") {
		c.DialAttempts = ctx.Uint("dial-attempts")
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func modifyToSentryLogger(logger *zap.Logger, client *sentry.Client) *zap.Logger {
	cfg := zapsentry.Configuration{
		Level:             zapcore.WarnLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(client))
	if err != nil {
		logger.Warn("failed to init zap", zap.Error(err))
	}

	return zapsentry.AttachCoreToLogger(core, logger)
}

func cmdServe(ctx *cli.Context) error {
	logger, ok := ctx.App.Metadata["logger"].(*zap.Logger)
	if !ok || logger == nil {
		return fmt.Errorf("unable to obtain logger from app context")
	}

	if ctx.IsSet("sentry") {
		client, err := sentry.NewClient(sentry.ClientOptions{
			Dsn:     ctx.String("sentry"),
			Release: ctx.App.Version,
		})
		if err != nil {
			return fmt.Errorf("initializing sentry client: %w", err)
		}
		defer client.Flush(time.Second * 2)

		logger = modifyToSentryLogger(logger, client)
		defer logger.Sync()
	}

	c, err := configFromContext(ctx)
	if err != nil {
		return err
	}

	tlsCfg, err := buildTLSConfig(logger.With(zapsentry.NewScope()).With(zap.String("component", "tls")), c)
	if err != nil {
		return err
	}

	addrs, err := cmdlisten.ParseAddresses("tcp", c.Listen)
	if err != nil {
		return fmt.Errorf("error parsing listen addresses: %w", err)
	}
	var proxyHeader time.Duration
	if c.ProxyProtocol {
		proxyHeader = timing.ProxyHeaderTimeout
	}
	source, err := listenAll(ctx.Context, logger, addrs, proxyHeader)
	if err != nil {
		return err
	}

	acceptor := terminator.NewAcceptor(tlsCfg, source,
		terminator.WithLogger(logger.With(zapsentry.NewScope()).With(zap.String("component", "acceptor"))),
	)

	var resolver *net.Resolver
	if c.DoH != "" {
		resolver, err = doh.NewResolver(c.DoH)
		if err != nil {
			return err
		}
		logger.Info("Resolving upstream over DNS over HTTPS", zap.String("endpoint", c.DoH))
	}

	gw := gateway.New(gateway.Config{
		Logger:           logger.With(zapsentry.NewScope()).With(zap.String("component", "gateway")),
		Acceptor:         acceptor,
		Upstream:         c.Upstream,
		Resolver:         resolver,
		DialAttempts:     c.DialAttempts,
		BufferSize:       int(c.BufferSize),
		HandshakeTimeout: c.HandshakeTimeout,
	})
	defer gw.Close()

	served := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx.Context)
	g.Go(func() error {
		defer close(served)
		return gw.Serve(gctx)
	})
	g.Go(func() error {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		select {
		case sig := <-sigs:
			logger.Info("received signal to stop", zap.String("signal", sig.String()))
		case <-gctx.Done():
			logger.Info("context done", zap.Error(gctx.Err()))
		case <-served:
			return nil
		}
		gw.Close()
		return nil
	})

	return g.Wait()
}
