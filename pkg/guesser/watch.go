package guesser

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"solguess/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
)

// Watch delivers decoded events of the given kind to sink until the
// returned subscription is unsubscribed. Endpoints without push support
// (plain HTTP) are polled with eth_getLogs instead.
func (c *Contract) Watch(ctx context.Context, kind models.EventKind, sink chan<- models.ContractEvent) (event.Subscription, error) {
	ev, ok := c.abi.Events[string(kind)]
	if !ok {
		return nil, fmt.Errorf("unknown event %s", kind)
	}
	q := ethereum.FilterQuery{
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{ev.ID}},
	}

	logs := make(chan types.Log, 16)
	sub, err := c.events.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		if errors.Is(err, rpc.ErrNotificationsUnsupported) {
			log.Debug().Str("event", string(kind)).Dur("interval", c.logPoll).Msg("push unsupported, polling logs")
			return c.pollLogs(ctx, kind, q, sink)
		}
		return nil, err
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				if l.Removed {
					continue
				}
				decoded, err := c.DecodeLog(l)
				if err != nil {
					log.Warn().Err(err).Str("event", string(kind)).Msg("failed to decode log")
					continue
				}
				select {
				case sink <- decoded:
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *Contract) pollLogs(ctx context.Context, kind models.EventKind, q ethereum.FilterQuery, sink chan<- models.ContractEvent) (event.Subscription, error) {
	head, err := c.events.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read head block: %w", err)
	}
	next := head + 1

	return event.NewSubscription(func(quit <-chan struct{}) error {
		ticker := c.clock.NewTicker(c.logPoll)
		defer ticker.Stop()

		pollCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-quit
			cancel()
		}()

		for {
			select {
			case <-quit:
				return nil
			case <-ticker.Chan():
			}

			head, err := c.events.BlockNumber(pollCtx)
			if err != nil {
				log.Warn().Err(err).Str("event", string(kind)).Msg("log poll failed")
				continue
			}
			if head < next {
				continue
			}
			q.FromBlock = new(big.Int).SetUint64(next)
			q.ToBlock = new(big.Int).SetUint64(head)
			logs, err := c.events.FilterLogs(pollCtx, q)
			if err != nil {
				log.Warn().Err(err).Str("event", string(kind)).Msg("log poll failed")
				continue
			}
			next = head + 1

			for _, l := range logs {
				decoded, err := c.DecodeLog(l)
				if err != nil {
					log.Warn().Err(err).Str("event", string(kind)).Msg("failed to decode log")
					continue
				}
				select {
				case sink <- decoded:
				case <-quit:
					return nil
				}
			}
		}
	}), nil
}
