package websocket

import (
	"context"

	"github.com/linkpulse/collector/internal/store"
)

// Relay pumps progress events from the Redis subscription into the hub until
// ctx is cancelled. Running the stream through Redis rather than feeding the
// hub directly keeps the events visible to every collector process.
func Relay(ctx context.Context, hub *Hub, sub *store.ProgressSubscription) {
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			hub.PublishProgress(ev)
		}
	}
}
