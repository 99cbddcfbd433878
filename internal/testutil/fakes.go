package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	telebot "gopkg.in/telebot.v3"

	"github.com/narvelay/daily-tasks-bot/internal/jobs"
	"github.com/narvelay/daily-tasks-bot/internal/payment/cryptopay"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreatedInvoice records one CreateInvoice call.
type CreatedInvoice struct {
	Amount  decimal.Decimal
	Payload string
}

// FakeGateway is a scriptable payment gateway.
type FakeGateway struct {
	mu sync.Mutex

	nextID   int64
	statuses map[int64]string
	errs     map[int64]error

	CreateErr   error
	Created     []CreatedInvoice
	StatusCalls int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		nextID:   1000,
		statuses: make(map[int64]string),
		errs:     make(map[int64]error),
	}
}

func (g *FakeGateway) CreateInvoice(_ context.Context, amount decimal.Decimal, payload string) (*cryptopay.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Created = append(g.Created, CreatedInvoice{Amount: amount, Payload: payload})
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}

	g.nextID++
	id := g.nextID
	g.statuses[id] = cryptopay.StatusActive
	return &cryptopay.Invoice{
		InvoiceID: id,
		Status:    cryptopay.StatusActive,
		Asset:     "TON",
		Amount:    amount.String(),
		Payload:   payload,
		PayURL:    "https://pay.example/invoice",
	}, nil
}

func (g *FakeGateway) GetInvoiceStatus(_ context.Context, invoiceID int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.StatusCalls++
	if err := g.errs[invoiceID]; err != nil {
		return "", err
	}
	status, ok := g.statuses[invoiceID]
	if !ok {
		return "", cryptopay.ErrInvoiceNotFound
	}
	return status, nil
}

// SetStatus sets the provider status of an invoice.
func (g *FakeGateway) SetStatus(invoiceID int64, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[invoiceID] = status
}

// FailStatus makes status queries for invoiceID return err; nil clears it.
func (g *FakeGateway) FailStatus(invoiceID int64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[invoiceID] = err
}

// FakeNotifier records payment notifications instead of queueing them.
type FakeNotifier struct {
	mu   sync.Mutex
	Err  error
	Sent []jobs.PaymentCreditedPayload
}

func (n *FakeNotifier) NotifyPaymentCredited(_ context.Context, p jobs.PaymentCreditedPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Err != nil {
		return n.Err
	}
	n.Sent = append(n.Sent, p)
	return nil
}

// Payloads returns a copy of the recorded notifications.
func (n *FakeNotifier) Payloads() []jobs.PaymentCreditedPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]jobs.PaymentCreditedPayload(nil), n.Sent...)
}

// SentMessage is one message delivered through FakeSender.
type SentMessage struct {
	To   string
	Text string
}

// FakeSender implements the telebot sending surface used by notification jobs.
type FakeSender struct {
	mu   sync.Mutex
	Err  error
	Sent []SentMessage
}

func (s *FakeSender) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	text, _ := what.(string)
	s.Sent = append(s.Sent, SentMessage{To: to.Recipient(), Text: text})
	return &telebot.Message{Text: text}, nil
}

// Messages returns a copy of the delivered messages.
func (s *FakeSender) Messages() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.Sent...)
}
