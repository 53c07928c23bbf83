package gateway

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/jdthomas/warp/metrics"
	"github.com/jdthomas/warp/terminator"
	"github.com/jdthomas/warp/timing"
	"github.com/jdthomas/warp/util/pipe"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// upstreamDialer dials "pipe://" addresses as local pipes and everything
// else over the network, resolving hostnames with resolver when given.
func upstreamDialer(resolver *net.Resolver) DialFunc {
	dialer := &net.Dialer{
		Resolver: resolver,
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if path, ok := pipe.ParseAddress(addr); ok {
			return pipe.DialPipe(ctx, path)
		}
		return dialer.DialContext(ctx, network, addr)
	}
}

func (g *Gateway) forward(ctx context.Context, logger *zap.Logger, stream *terminator.Stream) {
	upstream, err := retry.DoWithData(func() (net.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, timing.UpstreamDialTimeout)
		defer cancel()
		return g.Dial(dialCtx, "tcp", g.Upstream)
	},
		retry.Context(ctx),
		retry.Attempts(g.DialAttempts),
		retry.Delay(timing.UpstreamDialDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("Retrying upstream dial", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		metrics.UpstreamDialFailure.Inc()
		logger.Warn("Failed to dial upstream", zap.String("upstream", g.Upstream), zap.Error(err))
		stream.Close()
		return
	}

	g.pipe(stream, upstream)
}

// pipe copies both directions until either side is done, then closes both.
func (g *Gateway) pipe(src, dst io.ReadWriteCloser) {
	wg := &sync.WaitGroup{}
	wg.Add(2)

	go g.copy(wg, src, dst)
	go g.copy(wg, dst, src)

	wg.Wait()
}

func (g *Gateway) copy(wg *sync.WaitGroup, dst, src io.ReadWriteCloser) {
	defer wg.Done()

	buf := g.bufPool.Get()
	defer g.bufPool.Put(buf)

	io.CopyBuffer(dst, src, buf)

	src.Close()
	dst.Close()
}
