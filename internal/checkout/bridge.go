package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/storage"
	"go.uber.org/zap"
)

// PendingOrder returns the draft saved before the payment redirect.
func (f *Flow) PendingOrder(ctx context.Context) (domain.PendingOrder, error) {
	data, err := f.state.Get(ctx, storage.KeyPendingOrder)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return domain.PendingOrder{}, ErrNoPendingOrder
	}
	if err != nil {
		return domain.PendingOrder{}, fmt.Errorf("failed to load pending order: %w", err)
	}
	var p domain.PendingOrder
	if err := json.Unmarshal(data, &p); err != nil || p.OrderID == "" {
		f.logger.Warn("discarding unreadable pending order", zap.Error(err))
		return domain.PendingOrder{}, ErrNoPendingOrder
	}
	return p, nil
}

// CompleteFromRedirect turns the pending order into an order record when the
// user lands back from the payment page. An empty orderID accepts any pending
// order.
func (f *Flow) CompleteFromRedirect(ctx context.Context, orderID string) (domain.OrderRecord, error) {
	p, err := f.PendingOrder(ctx)
	if err != nil {
		return domain.OrderRecord{}, err
	}
	if orderID != "" && p.OrderID != orderID {
		return domain.OrderRecord{}, fmt.Errorf("%w: have %s, got %s", ErrPendingMismatch, p.OrderID, orderID)
	}
	return f.finalize(ctx, p, domain.OrderStatusPending)
}

// ConfirmPayment applies an out-of-band payment confirmation. Without a
// matching pending order an already recorded order is advanced to paid.
func (f *Flow) ConfirmPayment(ctx context.Context, orderID string) error {
	p, err := f.PendingOrder(ctx)
	if err != nil && !errors.Is(err, ErrNoPendingOrder) {
		return err
	}
	if err == nil && p.OrderID == orderID {
		_, err := f.finalize(ctx, p, domain.OrderStatusPaid)
		return err
	}

	if _, err := f.orders.Get(orderID); err != nil {
		return fmt.Errorf("confirm payment %s: %w", orderID, err)
	}
	if err := f.orders.SetStatus(ctx, orderID, domain.OrderStatusPaid); err != nil {
		return fmt.Errorf("confirm payment %s: %w", orderID, err)
	}
	f.logger.Info("order marked paid", zap.String("order_id", orderID))
	return nil
}

func (f *Flow) finalize(ctx context.Context, p domain.PendingOrder, status domain.OrderStatus) (domain.OrderRecord, error) {
	rec := domain.OrderRecord{
		ID:       p.OrderID,
		Date:     f.now().UTC(),
		Status:   status,
		Items:    domain.CloneItems(p.Items),
		Total:    p.Amount,
		Customer: p.Customer,
	}
	// never move a recorded order backwards
	if existing, err := f.orders.Get(p.OrderID); err == nil {
		rec.Date = existing.Date
		rec.Review = existing.Review
		if !existing.Status.CanTransitionTo(status) {
			rec.Status = existing.Status
		}
	}

	if err := f.orders.Upsert(ctx, rec); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("record order: %w", err)
	}
	if err := f.cart.ClearCart(ctx); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("clear cart: %w", err)
	}
	if err := f.state.Delete(ctx, storage.KeyPendingOrder); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("delete pending order: %w", err)
	}

	f.Reset()
	f.setStep(StepComplete)
	f.logger.Info("order completed",
		zap.String("order_id", rec.ID),
		zap.String("status", rec.Status.String()))
	return rec, nil
}

// CompleteLocal records an order without a payment provider, numbered
// FN<unix ms><0-999>.
func (f *Flow) CompleteLocal(ctx context.Context) (domain.OrderRecord, error) {
	snapshot := f.cart.Snapshot()
	if snapshot.IsEmpty() {
		f.notifyError("Votre panier est vide")
		return domain.OrderRecord{}, ErrEmptyCart
	}
	customer, _ := f.Customer()

	now := f.now()
	rec := domain.OrderRecord{
		ID:       "FN" + strconv.FormatInt(now.UnixMilli(), 10) + strconv.Itoa(rand.Intn(1000)),
		Date:     now.UTC(),
		Status:   domain.OrderStatusPending,
		Items:    snapshot.Items,
		Total:    snapshot.Total,
		Customer: customer,
	}
	if err := f.cart.ClearCart(ctx); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("clear cart: %w", err)
	}
	if err := f.orders.Upsert(ctx, rec); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("record order: %w", err)
	}
	f.setStep(StepComplete)
	return rec, nil
}

// WhatsAppLink hands the order to the shop's WhatsApp account: it builds the
// summary message, clears the cart and returns the wa.me link.
func (f *Flow) WhatsAppLink(ctx context.Context) (string, error) {
	number := strings.TrimPrefix(strings.TrimSpace(f.settings.WhatsAppNumber), "+")
	if number == "" {
		return "", ErrWhatsAppDisabled
	}
	customer, ok := f.Customer()
	if !ok {
		return "", ErrDetailsRequired
	}
	snapshot := f.cart.Snapshot()
	if snapshot.IsEmpty() {
		f.notifyError("Votre panier est vide")
		return "", ErrEmptyCart
	}

	msg := WhatsAppMessage(customer, snapshot.Items)
	link := "https://wa.me/" + number + "?text=" + strings.ReplaceAll(url.QueryEscape(msg), "+", "%20")

	if err := f.cart.ClearCart(ctx); err != nil {
		return "", fmt.Errorf("clear cart: %w", err)
	}
	f.Reset()
	f.notify("Votre commande a été envoyée sur WhatsApp !")
	return link, nil
}

// WhatsAppMessage is the order summary sent to the shop.
func WhatsAppMessage(c domain.Customer, items []domain.CartItem) string {
	var b strings.Builder
	b.WriteString("*NOUVELLE COMMANDE FORTNITEITEMS*\n\n")
	b.WriteString("*Articles commandes:*\n")
	var total float64
	for _, item := range items {
		sub := item.Subtotal()
		total += sub
		fmt.Fprintf(&b, "- %s x%d = %s FCFA\n", item.Name, item.Quantity, domain.FormatAmount(sub))
	}
	fmt.Fprintf(&b, "\n*Total: %s FCFA*\n\n", domain.FormatAmount(total))
	b.WriteString("*Informations client:*\n")
	fmt.Fprintf(&b, "- Nom: %s\n", c.FullName)
	fmt.Fprintf(&b, "- Email: %s\n", c.ContactEmail)
	if c.ProductType == domain.ProductTypeCrew {
		fmt.Fprintf(&b, "- Pseudo Epic: %s\n", c.EpicUsername)
		fmt.Fprintf(&b, "- Email Epic: %s\n", c.EpicLoginEmail)
		fmt.Fprintf(&b, "- WhatsApp: %s\n", c.WhatsAppNumber)
	} else {
		fmt.Fprintf(&b, "- Plateforme: %s\n", c.Platform)
	}
	b.WriteString("\nJe souhaite finaliser cette commande !")
	return b.String()
}
