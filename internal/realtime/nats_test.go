package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
)

func startNATS(t *testing.T) *server.Server {
	t.Helper()

	ns, err := server.NewServer(&server.Options{Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNATSPublisherSubject(t *testing.T) {
	ns := startNATS(t)

	pub, err := NewNATSPublisher(ns.ClientURL(), "negotiations")
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	requestID := uuid.New()
	msgs := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("negotiations."+requestID.String()+".*", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	evt := events.New(requestID, events.MessageInserted, map[string]string{"body": "hello"}, time.Now().UTC())
	require.NoError(t, pub.Publish(context.Background(), evt))

	select {
	case msg := <-msgs:
		assert.Equal(t, "negotiations."+requestID.String()+".message_inserted", msg.Subject)
		var got events.Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, evt.ID, got.ID)
		assert.Equal(t, events.MessageInserted, got.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNATSPublisherHonoursCancelledContext(t *testing.T) {
	ns := startNATS(t)

	pub, err := NewNATSPublisher(ns.ClientURL(), "")
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Publish(ctx, testEvent(events.RequestUpdated)), context.Canceled)
}
