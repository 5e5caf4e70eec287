package rabbitmq

import (
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// RoutingKeyExecute routes batch execution requests to the optimizer
	// queue
	RoutingKeyExecute = "optimizer.execute"
)

// ExecuteMessage asks the consumer to start or resume a batch run
type ExecuteMessage struct {
	BatchID     string    `json:"batchId"`
	RequestedBy string    `json:"requestedBy"`
	RequestedAt time.Time `json:"requestedAt"`
}

// SetupTopology declares the exchange and execution queue and binds them.
// Idempotent; safe to run on every startup.
func SetupTopology(client Client, exchangeName, queueName string) error {
	if err := client.DeclareExchange(exchangeName, "direct"); err != nil {
		return err
	}
	if _, err := client.DeclareQueue(queueName); err != nil {
		return err
	}
	return client.BindQueue(queueName, exchangeName, RoutingKeyExecute)
}

// PublishExecute enqueues a batch execution request
func PublishExecute(client Client, exchangeName string, msg ExecuteMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	headers := amqp.Table{
		"x-batch-id": msg.BatchID,
	}

	return client.Publish(exchangeName, RoutingKeyExecute, body, headers)
}
