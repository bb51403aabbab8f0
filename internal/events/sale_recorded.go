package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSaleRecorded = "SaleRecorded"
	saleRecordedSchema    = "storefront.sales.SaleRecorded.v1"
)

type SaleRecordedItem struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type SaleRecordedPayload struct {
	SaleID     int64              `json:"saleId"`
	UserID     int64              `json:"userId"`
	TotalPrice float64            `json:"totalPrice"`
	Items      []SaleRecordedItem `json:"items"`
	RecordedAt time.Time          `json:"recordedAt"`
}

type SaleRecordedEvent = EventEnvelope[SaleRecordedPayload]

func newSaleRecordedEvent(meta EventMeta, seq int64, producer string, payload SaleRecordedPayload, occurredAt time.Time) SaleRecordedEvent {
	return SaleRecordedEvent{
		EventName:     EventTypeSaleRecorded,
		EventVersion:  1,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producer,
		PartitionKey:  meta.PartitionKey,
		Sequence:      seq,
		OccurredAt:    occurredAt,
		Schema:        saleRecordedSchema,
		Payload:       payload,
	}
}
