package health

import (
	"context"

	"github.com/coralcp/dbaas/eventbus"
)

func testCtx() context.Context { return context.Background() }

type fakeBus struct {
	published []eventbus.StatusChangeEvent
}

func newFakeBus() *fakeBus { return &fakeBus{} }

func (f *fakeBus) PublishStatusChange(ctx context.Context, ev eventbus.StatusChangeEvent) error {
	f.published = append(f.published, ev)
	return nil
}

func (f *fakeBus) SubscribeStatusChange(ctx context.Context) (<-chan eventbus.StatusChangeEvent, error) {
	ch := make(chan eventbus.StatusChangeEvent)
	close(ch)
	return ch, nil
}

func (f *fakeBus) Close() error { return nil }
