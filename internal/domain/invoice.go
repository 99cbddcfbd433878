package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the local lifecycle state of an invoice. The only transition is pending to paid.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
)

// Invoice is a payment request issued through the gateway for one coin pack.
type Invoice struct {
	ID             int64
	ExternalID     int64
	UserID         int64
	PackID         string
	Coins          int64
	Asset          string
	Amount         decimal.Decimal
	PayURL         string
	Status         InvoiceStatus
	CreatedAt      time.Time
	PaidAt         *time.Time
	NotifiedAt     *time.Time
	NotifyAttempts int
	NotifyError    string
}

// LedgerKind tells why a balance was credited.
type LedgerKind string

const (
	LedgerReward   LedgerKind = "reward"
	LedgerPurchase LedgerKind = "purchase"
)

// Pack is a purchasable bundle of coins.
type Pack struct {
	ID    string
	Name  string
	Coins int64
	Price decimal.Decimal
}

// Stats aggregates totals shown to admins.
type Stats struct {
	Users           int64
	PendingInvoices int64
	PaidInvoices    int64
	CoinsSold       int64
}
