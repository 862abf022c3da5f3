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
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPublishSendsJSONPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "crawls")
	require.NoError(t, err)

	p := New(client)
	defer func() { require.NoError(t, p.Close()) }()

	id, err := p.Publish(ctx, "crawls", map[string]any{"content_type": "news", "indexed": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "news", got["content_type"])
	require.InDelta(t, 3, got["indexed"], 0)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := (&Publisher{}).Publish(ctx, "crawls", nil)
	require.ErrorContains(t, err, "not configured")

	client, _ := newTestClient(t)
	p := New(client)
	defer func() { _ = p.Close() }()

	_, err = p.Publish(ctx, "", nil)
	require.ErrorContains(t, err, "topic is required")

	_, err = p.Publish(ctx, "crawls", map[string]any{"bad": make(chan int)})
	require.ErrorContains(t, err, "marshal payload")

	_, err = p.Publish(ctx, "missing-topic", map[string]any{})
	require.ErrorContains(t, err, "publish message")
}
