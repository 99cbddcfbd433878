// Package jobs wires background work onto asynq queues.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TaskTypePaymentCredited = "notify:payment_credited"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues maps queue names to their processing priority.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// PaymentCreditedPayload tells the worker which user to notify about a settled invoice.
type PaymentCreditedPayload struct {
	InvoiceID  int64 `json:"invoice_id"`
	ExternalID int64 `json:"external_id"`
	UserID     int64 `json:"user_id"`
	Coins      int64 `json:"coins"`
	Balance    int64 `json:"balance"`
}

// PaymentCreditedTaskID is the dedup key of the notification for one invoice.
func PaymentCreditedTaskID(invoiceID int64) string {
	return fmt.Sprintf("payment_credited:%d", invoiceID)
}

// NewPaymentCreditedTask builds the notification task. Only one task per invoice is accepted by the queue.
func NewPaymentCreditedTask(p PaymentCreditedPayload, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypePaymentCredited, payload,
		asynq.Queue(QueueCritical),
		asynq.TaskID(PaymentCreditedTaskID(p.InvoiceID)),
		asynq.MaxRetry(maxRetry),
	), nil
}
