package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an event and doubles as its Kafka topic
type EventType string

const (
	// Payment Events
	EventPaymentInitiated EventType = "payment.initiated.v1"
	EventPaymentCompleted EventType = "payment.completed.v1"
	EventPaymentFailed    EventType = "payment.failed.v1"

	// Enrollment Events
	EventEnrollmentCreated EventType = "enrollment.created.v1"
)

// BaseEvent is embedded in every event
type BaseEvent struct {
	EventID       string    `json:"eventId"`
	EventType     EventType `json:"eventType"`
	SchemaVersion int       `json:"schemaVersion"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId"` // transaction id of the payment attempt
}

// NewBaseEvent stamps a fresh event id
func NewBaseEvent(eventType EventType, correlationID string, occurredAt time.Time) BaseEvent {
	return BaseEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: 1,
		OccurredAt:    occurredAt.UTC(),
		CorrelationID: correlationID,
	}
}

// PaymentInitiatedEvent is emitted once a gateway session exists and the pending row is stored
type PaymentInitiatedEvent struct {
	BaseEvent
	TransactionID string `json:"transactionId"`
	UserID        string `json:"userId"`
	CourseID      string `json:"courseId"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod"`
}

// PaymentCompletedEvent is emitted when the gateway confirms the payment
type PaymentCompletedEvent struct {
	BaseEvent
	TransactionID        string    `json:"transactionId"`
	GatewayTransactionID string    `json:"gatewayTransactionId"`
	UserID               string    `json:"userId"`
	CourseID             string    `json:"courseId"`
	Amount               string    `json:"amount"`
	Currency             string    `json:"currency"`
	PaymentMethod        string    `json:"paymentMethod"`
	PaidAt               time.Time `json:"paidAt"`
}

// PaymentFailedEvent is emitted when the gateway rejects the payment
type PaymentFailedEvent struct {
	BaseEvent
	TransactionID string `json:"transactionId"`
	UserID        string `json:"userId"`
	CourseID      string `json:"courseId"`
	PaymentMethod string `json:"paymentMethod"`
	Reason        string `json:"reason"`
}

// EnrollmentCreatedEvent grants course access
type EnrollmentCreatedEvent struct {
	BaseEvent
	StudentID string `json:"studentId"`
	CourseID  string `json:"courseId"`
	Status    string `json:"status"`
}
