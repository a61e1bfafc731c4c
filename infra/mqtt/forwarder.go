package mqtt

import (
	"context"

	coremetrics "github.com/warehousekit/dispatchd/core/metrics"
	"github.com/warehousekit/dispatchd/infra/logger"
	"github.com/warehousekit/dispatchd/internal/eventbus"
)

// Forward drains engine events from the bus subscription and pushes them to
// the publisher. It returns when the context is canceled or the channel is
// closed. Intended to run in its own goroutine.
func Forward(ctx context.Context, events <-chan eventbus.Event, pub Publisher, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case coremetrics.AttemptEvent:
				if err := pub.PublishAttempt(e); err != nil {
					log.Warnf("publish attempt event: %v", err)
				}
			case coremetrics.RefreshEvent:
				if err := pub.PublishRefresh(e); err != nil {
					log.Warnf("publish refresh event: %v", err)
				}
			}
		}
	}
}
