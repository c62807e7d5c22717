package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Bharath-code/deckslayer/internal/ledger"
	"github.com/Bharath-code/deckslayer/internal/storage"
)

// EventPaymentSucceeded is the only event type that changes state.
const EventPaymentSucceeded = "payment.succeeded"

// Event is the subset of a Dodo webhook payload the service reads.
type Event struct {
	Type string `json:"type"`
	Data struct {
		PaymentID string `json:"payment_id"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
		Metadata    map[string]string `json:"metadata"`
		ProductCart []cartItem        `json:"product_cart"`
	} `json:"data"`
}

// Outcome describes what HandleEvent did with a delivery.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Ledger credits purchases.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount int, entryType, reason string) error
}

// Store records deliveries and unlocks exports.
type Store interface {
	RecordPaymentEvent(ctx context.Context, id, eventType string) (bool, error)
	ForgetPaymentEvent(ctx context.Context, id string) error
	SetExportUnlocked(ctx context.Context, id, userID string) error
}

// Checkouts creates hosted checkout sessions.
type Checkouts interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
}

// Service ties the catalog, the checkout API and the ledger together.
type Service struct {
	catalog   *Catalog
	checkouts Checkouts
	ledger    Ledger
	store     Store
	baseURL   string
	logger    *slog.Logger
}

func NewService(catalog *Catalog, checkouts Checkouts, l Ledger, store Store, baseURL string) *Service {
	return &Service{
		catalog:   catalog,
		checkouts: checkouts,
		ledger:    l,
		store:     store,
		baseURL:   baseURL,
		logger:    slog.Default(),
	}
}

// Checkout resolves productID (empty selects the default product) and opens
// a checkout session for it. Unknown products return ErrUnknownProduct.
func (s *Service) Checkout(ctx context.Context, productID, userID, email, analysisID string) (string, error) {
	p, err := s.catalog.Resolve(productID)
	if err != nil {
		return "", err
	}
	return s.checkouts.CreateCheckout(ctx, CheckoutRequest{
		ProductID:  p.ID,
		UserID:     userID,
		Email:      email,
		AnalysisID: analysisID,
		ReturnURL:  s.baseURL + "/roast?success=true",
	})
}

// HandleEvent applies a verified delivery. Each webhook id is applied at
// most once; a delivery whose application fails is forgotten so the
// provider's redelivery can retry it.
func (s *Service) HandleEvent(ctx context.Context, webhookID string, ev Event) (Outcome, error) {
	log := s.logger.With("webhook_id", webhookID, "type", ev.Type)
	if ev.Type != EventPaymentSucceeded {
		log.Debug("ignoring webhook event")
		return OutcomeIgnored, nil
	}

	userID := ev.Data.Metadata["user_id"]
	if userID == "" {
		log.Warn("payment without user_id metadata", "payment_id", ev.Data.PaymentID, "email", ev.Data.Customer.Email)
		return OutcomeIgnored, nil
	}
	if len(ev.Data.ProductCart) == 0 {
		log.Warn("payment without product cart", "payment_id", ev.Data.PaymentID)
		return OutcomeIgnored, nil
	}
	item := ev.Data.ProductCart[0]
	p, err := s.catalog.Resolve(item.ProductID)
	if err != nil {
		log.Warn("payment for unknown product", "product_id", item.ProductID)
		return OutcomeIgnored, nil
	}

	first, err := s.store.RecordPaymentEvent(ctx, webhookID, ev.Type)
	if err != nil {
		return "", err
	}
	if !first {
		log.Info("duplicate webhook delivery")
		return OutcomeDuplicate, nil
	}

	if err := s.apply(ctx, userID, p, item.Quantity, ev.Data.Metadata["analysis_id"]); err != nil {
		if ferr := s.store.ForgetPaymentEvent(context.WithoutCancel(ctx), webhookID); ferr != nil {
			log.Error("forgetting failed payment event", "error", ferr)
		}
		return "", err
	}
	log.Info("payment applied", "user_id", userID, "product_id", p.ID)
	return OutcomeApplied, nil
}

func (s *Service) apply(ctx context.Context, userID string, p Product, quantity int, analysisID string) error {
	if quantity <= 0 {
		quantity = 1
	}
	if err := s.ledger.Credit(ctx, userID, p.Credits*quantity, storage.LedgerPurchase, ledger.PurchaseReason(p.ID)); err != nil {
		return fmt.Errorf("crediting %s: %w", p.ID, err)
	}

	if p.UnlocksTaggedExport && analysisID != "" {
		err := s.store.SetExportUnlocked(ctx, analysisID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("export purchase for unknown analysis", "user_id", userID, "analysis_id", analysisID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("unlocking export for %s: %w", analysisID, err)
		}
	}
	return nil
}
