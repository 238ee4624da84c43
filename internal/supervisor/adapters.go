package supervisor

import (
	"context"

	"tradedaemon/internal/chainrpc"
	"tradedaemon/internal/workers"
)

// chainSubscriber adapts *chainrpc.Client's typed SubscriptionHandle and
// LogEvent onto the workers.Subscriber port, which stays free of any
// chainrpc import so internal/workers can be unit-tested without a chain
// client at all.
type chainSubscriber struct {
	chain *chainrpc.Client
}

func (s *chainSubscriber) OnLogs(address string, fn func(workers.LogEvent)) uint64 {
	handle := s.chain.OnLogs(address, func(e chainrpc.LogEvent) {
		fn(workers.LogEvent{Signature: e.Signature, Err: e.Err})
	})
	return uint64(handle)
}

func (s *chainSubscriber) RemoveOnLogs(handle uint64) {
	s.chain.RemoveOnLogs(chainrpc.SubscriptionHandle(handle))
}

// chainSwapParser adapts *chainrpc.Client.WalletDelta onto workers.SwapParser.
type chainSwapParser struct {
	chain *chainrpc.Client
}

func (p *chainSwapParser) ParseSwap(ctx context.Context, signature, watchedWallet string) (amount, preBalance float64, ok bool, err error) {
	pre, post, err := p.chain.WalletDelta(ctx, signature, watchedWallet)
	if err != nil {
		return 0, 0, false, err
	}
	delta := pre - post
	if delta < 0 {
		delta = -delta
	}
	if delta == 0 {
		return 0, pre, false, nil
	}
	return delta, pre, true, nil
}
