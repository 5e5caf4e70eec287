package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	exchanges []string
	queues    []string
	bindings  [][3]string

	publishedExchange string
	publishedKey      string
	publishedBody     []byte
	publishedHeaders  amqp.Table
}

func (c *recordingClient) Close() error  { return nil }
func (c *recordingClient) Health() error { return nil }

func (c *recordingClient) DeclareExchange(name, kind string) error {
	c.exchanges = append(c.exchanges, name)
	return nil
}

func (c *recordingClient) DeclareQueue(name string) (amqp.Queue, error) {
	c.queues = append(c.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (c *recordingClient) BindQueue(queueName, exchangeName, routingKey string) error {
	c.bindings = append(c.bindings, [3]string{queueName, exchangeName, routingKey})
	return nil
}

func (c *recordingClient) Publish(exchange, routingKey string, body []byte, headers amqp.Table) error {
	c.publishedExchange = exchange
	c.publishedKey = routingKey
	c.publishedBody = body
	c.publishedHeaders = headers
	return nil
}

func (c *recordingClient) Consume(queueName, consumerTag string) (<-chan amqp.Delivery, error) {
	return nil, nil
}

func TestSetupTopology(t *testing.T) {
	client := &recordingClient{}

	err := SetupTopology(client, "optimizer", "optimizer.jobs")
	require.NoError(t, err)

	assert.Equal(t, []string{"optimizer"}, client.exchanges)
	assert.Equal(t, []string{"optimizer.jobs"}, client.queues)
	require.Len(t, client.bindings, 1)
	assert.Equal(t, [3]string{"optimizer.jobs", "optimizer", RoutingKeyExecute}, client.bindings[0])
}

func TestPublishExecute(t *testing.T) {
	client := &recordingClient{}

	msg := ExecuteMessage{
		BatchID:     "65f1a2b3c4d5e6f7a8b9c0d1",
		RequestedBy: "token-1",
		RequestedAt: time.Now(),
	}
	require.NoError(t, PublishExecute(client, "optimizer", msg))

	assert.Equal(t, "optimizer", client.publishedExchange)
	assert.Equal(t, RoutingKeyExecute, client.publishedKey)
	assert.Equal(t, msg.BatchID, client.publishedHeaders["x-batch-id"])

	var decoded ExecuteMessage
	require.NoError(t, json.Unmarshal(client.publishedBody, &decoded))
	assert.Equal(t, msg.BatchID, decoded.BatchID)
	assert.Equal(t, msg.RequestedBy, decoded.RequestedBy)
}
