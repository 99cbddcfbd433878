// Package billing issues invoices for coin packs.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/narvelay/daily-tasks-bot/internal/catalog"
	"github.com/narvelay/daily-tasks-bot/internal/domain"
	apperrors "github.com/narvelay/daily-tasks-bot/internal/errors"
	"github.com/narvelay/daily-tasks-bot/internal/payment/cryptopay"
	"github.com/narvelay/daily-tasks-bot/pkg/metrics"
)

// ErrUnknownPack is returned for a pack id that is not in the catalog.
var ErrUnknownPack = errors.New("unknown pack")

// Gateway creates invoices at the payment provider.
type Gateway interface {
	CreateInvoice(ctx context.Context, amount decimal.Decimal, payload string) (*cryptopay.Invoice, error)
}

// InvoiceStore persists issued invoices.
type InvoiceStore interface {
	Create(ctx context.Context, inv *domain.Invoice) error
}

// Payload encodes the invoice payload sent to the provider.
func Payload(userID int64, packID string) string {
	return fmt.Sprintf("buy_%d_%s", userID, packID)
}

// ParsePayload decodes a payload produced by Payload.
func ParsePayload(payload string) (userID int64, packID string, err error) {
	rest, ok := strings.CutPrefix(payload, "buy_")
	if !ok {
		return 0, "", fmt.Errorf("payload %q: missing prefix", payload)
	}
	idPart, packID, ok := strings.Cut(rest, "_")
	if !ok || packID == "" {
		return 0, "", fmt.Errorf("payload %q: missing pack", payload)
	}
	userID, err = strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("payload %q: %w", payload, err)
	}
	return userID, packID, nil
}

// Service runs the purchase flow.
type Service struct {
	catalog  *catalog.Catalog
	gateway  Gateway
	invoices InvoiceStore
	log      *slog.Logger
}

func NewService(cat *catalog.Catalog, gateway Gateway, invoices InvoiceStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{catalog: cat, gateway: gateway, invoices: invoices, log: log}
}

// StartPurchase creates a provider invoice for the pack and stores it as pending.
// When the provider refuses, nothing is stored and a payment AppError is returned.
func (s *Service) StartPurchase(ctx context.Context, userID int64, packID string) (*domain.Invoice, error) {
	pack, ok := s.catalog.Lookup(packID)
	if !ok {
		metrics.RecordInvoiceCreated("unknown", "unknown_pack")
		return nil, fmt.Errorf("%w: %q", ErrUnknownPack, packID)
	}

	log := s.log.With(slog.Int64("telegram_id", userID), slog.String("pack_id", pack.ID))

	remote, err := s.gateway.CreateInvoice(ctx, pack.Price, Payload(userID, pack.ID))
	if err != nil {
		metrics.RecordInvoiceCreated(pack.ID, "gateway_error")
		log.WarnContext(ctx, "invoice creation failed", slog.Any("error", err))
		return nil, apperrors.NewPaymentError("create invoice", err)
	}

	inv := &domain.Invoice{
		ExternalID: remote.InvoiceID,
		UserID:     userID,
		PackID:     pack.ID,
		Coins:      pack.Coins,
		Asset:      s.catalog.Asset(),
		Amount:     pack.Price,
		PayURL:     remote.URL(),
		Status:     domain.InvoicePending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		metrics.RecordInvoiceCreated(pack.ID, "store_error")
		log.ErrorContext(ctx, "invoice created at provider but not stored",
			slog.Int64("external_id", remote.InvoiceID),
			slog.Any("error", err),
		)
		return nil, apperrors.NewDatabaseError(err)
	}

	metrics.RecordInvoiceCreated(pack.ID, "created")
	log.InfoContext(ctx, "invoice issued",
		slog.Int64("invoice_id", inv.ID),
		slog.Int64("external_id", inv.ExternalID),
		slog.String("amount", inv.Amount.String()),
	)
	return inv, nil
}

// Packs returns the purchasable packs in display order.
func (s *Service) Packs() []domain.Pack {
	return s.catalog.List()
}

// Asset is the currency prices are shown in.
func (s *Service) Asset() string {
	return s.catalog.Asset()
}
