package events_test

import (
	"context"
	"testing"
	"time"

	"dovakin0007.com/notebook-grpc/internal/events"
	"dovakin0007.com/notebook-grpc/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBusDeliversPerNotebook(t *testing.T) {
	bus := events.NewLocalBus()
	ctx := context.Background()

	a, cancelA, err := bus.Subscribe(ctx, "nb-a")
	require.NoError(t, err)
	defer cancelA()
	b, cancelB, err := bus.Subscribe(ctx, "nb-b")
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, bus.Publish(ctx, models.ChangeEvent{NotebookID: "nb-a", Kind: "addNode"}))

	select {
	case ev := <-a:
		assert.Equal(t, "addNode", ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case ev := <-b:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestLocalBusCancelClosesChannel(t *testing.T) {
	bus := events.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _, err := bus.Subscribe(ctx, "nb")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	require.NoError(t, bus.Publish(context.Background(), models.ChangeEvent{NotebookID: "nb"}))
}

func TestLocalBusCloseThenCancel(t *testing.T) {
	bus := events.NewLocalBus()
	_, cancel, err := bus.Subscribe(context.Background(), "nb")
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	assert.NotPanics(t, cancel)
}
