package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/hnmirror/internal/notify"
)

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "hnmirror-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "cycles")
	require.NoError(t, err)
	p := New(topic)
	t.Cleanup(p.Close)

	id, err := p.Publish(ctx, notify.CycleCompleted{Category: "top", CycleID: "c1", Items: 12})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "top", msgs[0].Attributes["category"])

	var got notify.CycleCompleted
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "c1", got.CycleID)
	require.Equal(t, 12, got.Items)
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), notify.CycleCompleted{})
	require.ErrorContains(t, err, "not configured")
}
