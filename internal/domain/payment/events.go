package payment

import "time"

// ConfirmedEvent is emitted once per payment, by the caller that moved it to confirmed.
type ConfirmedEvent struct {
	PaymentID         string `json:"paymentId"`
	ProductID         string `json:"productId"`
	ExternalReference string `json:"externalReference"`
	ReceiptURL        string `json:"receiptUrl"`
	CustomerName      string `json:"customerName"`
	CustomerEmail     string `json:"customerEmail"`
	ProductTitle      string `json:"productTitle"`
	MerchantName      string `json:"merchantName"`
	MerchantEmail     string `json:"merchantEmail"`
	// Amount is pre-formatted with two decimals.
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (ConfirmedEvent) EventName() string { return "payment.confirmed" }

func (e ConfirmedEvent) EventKey() string { return e.PaymentID }

// FailedEvent is emitted when the provider reports a terminal failure.
type FailedEvent struct {
	PaymentID         string    `json:"paymentId"`
	ProductID         string    `json:"productId"`
	ExternalReference string    `json:"externalReference"`
	Status            Status    `json:"status"`
	OccurredAt        time.Time `json:"occurredAt"`
}

func (FailedEvent) EventName() string { return "payment.failed" }

func (e FailedEvent) EventKey() string { return e.PaymentID }
