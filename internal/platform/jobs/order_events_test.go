package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-events")
	require.NoError(t, err)

	publisher, err := NewPubSubOrderEventPublisher(topic)
	require.NoError(t, err)
	defer publisher.Stop()

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           "order.cancelled",
		OrderID:        "ord_01HX",
		UserID:         "usr_1",
		PreviousStatus: "paid",
		CurrentStatus:  "cancelled",
		PaymentMethod:  "card",
		TotalAmount:    12550,
		Currency:       "gel",
		ActorID:        "usr_1",
		OccurredAt:     occurred,
		Metadata:       map[string]any{"paymentIntentId": "pi_123"},
	}
	require.NoError(t, publisher.PublishOrderEvent(ctx, event))

	messages := srv.Messages()
	require.Len(t, messages, 1)

	var payload orderEventMessage
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	assert.Equal(t, "ord_01HX", payload.OrderID)
	assert.Equal(t, int64(12550), payload.TotalAmount)
	assert.True(t, payload.OccurredAt.Equal(occurred), "occurredAt %s", payload.OccurredAt)
	assert.Equal(t, "pi_123", payload.Metadata["paymentIntentId"])
	assert.Equal(t, "order.cancelled", messages[0].Attributes["type"])
	assert.Equal(t, "ord_01HX", messages[0].OrderingKey)
}

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	_, err := NewPubSubOrderEventPublisher(nil)
	assert.Error(t, err)
}
