// Package protocol defines the inter-agent message schema: typed
// request/response/notify envelopes and the reply-correlation helper
// (spec.md §4.7).
package protocol

import "time"

// Type identifies an envelope's role in the protocol.
type Type string

const (
	TypeRequest  Type = "request"
	TypeResponse Type = "response"
	TypeNotify   Type = "notify"
)

// Priority orders delivery/urgency, purely advisory for the core.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status is an envelope's monotone delivery state, per spec.md §3
// invariant 4: pending < delivered < read < processed, no field set ever
// clears.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusProcessed Status = "processed"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	case StatusProcessed:
		return 3
	default:
		return -1
	}
}

// Before reports whether s precedes other in the status order.
func (s Status) Before(other Status) bool { return s.rank() < other.rank() }

// Message is the envelope payload every mailbox operation carries.
type Message struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Type      Type           `json:"type"`
	Subject   string         `json:"subject"`
	Payload   any            `json:"payload,omitempty"`
	Priority  Priority       `json:"priority"`
	Status    Status         `json:"status"`
	Timestamp int64          `json:"timestamp"`
	ReplyTo   string         `json:"replyTo,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Operation/CorrelationID/Timeout are request-specific fields;
	// Success/Error are response-specific; Event is notify-specific. They
	// travel on the same Message so one envelope schema covers all three
	// variants; Type says which fields apply, and nothing checks that a
	// message sets only the fields of its Type.
	Operation     string `json:"operation,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
	Success       *bool  `json:"success,omitempty"`
	Error         string `json:"error,omitempty"`
	Event         string `json:"event,omitempty"`
}

// Envelope wraps a Message with its mailbox delivery timestamps.
type Envelope struct {
	Message      Message `json:"message"`
	DeliveredAt  *int64  `json:"deliveredAt,omitempty"`
	ReadAt       *int64  `json:"readAt,omitempty"`
	ProcessedAt  *int64  `json:"processedAt,omitempty"`
}

// NewRequest builds a RequestMessage-shaped envelope.
func NewRequest(id, from, to, operation, subject string, payload any, priority Priority) Message {
	return Message{
		ID: id, From: from, To: to, Type: TypeRequest,
		Subject: subject, Payload: payload, Priority: priority,
		Status: StatusPending, Timestamp: time.Now().UnixMilli(),
		Operation: operation,
	}
}

// NewNotify builds a NotifyMessage-shaped envelope.
func NewNotify(id, from, to, eventName string, payload any) Message {
	return Message{
		ID: id, From: from, To: to, Type: TypeNotify,
		Payload: payload, Priority: PriorityNormal,
		Status: StatusPending, Timestamp: time.Now().UnixMilli(),
		Event: eventName,
	}
}

// CreateReply builds a ResponseMessage whose correlationId equals
// request's id. It swaps from/to, prefixes the subject with "Re: ", and
// sets type=response, per spec.md §4.7.
func CreateReply(request Message, replyID string, success bool, payload any, errMsg string) Message {
	reply := Message{
		ID:            replyID,
		From:          request.To,
		To:            request.From,
		Type:          TypeResponse,
		Subject:       "Re: " + request.Subject,
		Payload:       payload,
		Priority:      request.Priority,
		Status:        StatusPending,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: request.ID,
		Error:         errMsg,
	}
	reply.Success = &success
	return reply
}
