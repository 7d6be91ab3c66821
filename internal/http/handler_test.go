package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/chat"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	m         sync.RWMutex
	healthErr error
	shop      []catalog.ShopItem
	limits    []int
}

func (b *mockBackend) Health(context.Context) error {
	b.m.RLock()
	defer b.m.RUnlock()
	return b.healthErr
}

func (b *mockBackend) Shop(_ context.Context, limit int) ([]catalog.ShopItem, error) {
	b.m.Lock()
	defer b.m.Unlock()
	b.limits = append(b.limits, limit)
	return b.shop, nil
}

type mockPayments struct {
	m        sync.Mutex
	resp     api.PaymentResponse
	block    chan struct{}
	requests int
}

func (p *mockPayments) CreatePayment(ctx context.Context, _ api.PaymentRequest) (api.PaymentResponse, error) {
	p.m.Lock()
	p.requests++
	block, resp := p.block, p.resp
	p.m.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return api.PaymentResponse{}, ctx.Err()
		}
	}
	return resp, nil
}

func (p *mockPayments) Health(context.Context) error { return nil }

func (p *mockPayments) calls() int {
	p.m.Lock()
	defer p.m.Unlock()
	return p.requests
}

type mockHistory struct {
	m       sync.RWMutex
	history []domain.ChatMessage
	err     error
	sent    []string
}

func (c *mockHistory) ChatHistory(context.Context, string) ([]domain.ChatMessage, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	return append([]domain.ChatMessage(nil), c.history...), nil
}

func (c *mockHistory) SendMessage(_ context.Context, _ string, content string, _ domain.Sender) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.sent = append(c.sent, content)
	return nil
}

func (c *mockHistory) set(history []domain.ChatMessage, err error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.history, c.err = history, err
}

type fixture struct {
	router   http.Handler
	cart     *cart.Store
	orders   *orders.Store
	payments *mockPayments
	backend  *mockBackend
	history  *mockHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	state := storage.NewMemoryStore()
	bus := events.NewBus()

	c, err := cart.Open(ctx, state, bus, nil)
	require.NoError(t, err)
	o, err := orders.Open(ctx, state, bus, nil)
	require.NoError(t, err)

	payments := &mockPayments{resp: api.PaymentResponse{Success: true, OrderID: "ord-1", PaymentLink: "https://pay.example/ord-1"}}
	flow := checkout.NewFlow(c, o, payments, state, bus, nil, checkout.Settings{WhatsAppNumber: "+22500000000"})
	t.Cleanup(flow.Reset)

	history := &mockHistory{}
	chats := chat.NewRegistry(ctx, history, o, bus, nil, chat.Settings{PollInterval: 10 * time.Millisecond})
	t.Cleanup(chats.Close)

	backend := &mockBackend{}
	h := NewHandler(Deps{
		Cart:    c,
		Orders:  o,
		Flow:    flow,
		Chats:   chats,
		Backend: backend,
		Bus:     bus,
		Timeout: 5 * time.Second,
	})
	return &fixture{router: h.Router(), cart: c, orders: o, payments: payments, backend: backend, history: history}
}

func (fx *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(v)
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestCart_AddUpdateRemove(t *testing.T) {
	fx := newFixture(t)
	item := AddItemRequestDTO{ID: "3", Name: "5000 V-Bucks", Price: 16000, Quantity: 1}

	rec := fx.do(t, http.MethodPost, "/api/v1/cart/items", item)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = fx.do(t, http.MethodPost, "/api/v1/cart/items", item)
	require.Equal(t, http.StatusCreated, rec.Code)

	got := decode[CartResponseDTO](t, rec)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, 32000.0, got.Total)

	rec = fx.do(t, http.MethodPut, "/api/v1/cart/items/3", UpdateQuantityRequestDTO{Quantity: 0})
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[CartResponseDTO](t, rec)
	assert.Empty(t, got.Items)
	assert.Equal(t, 0, got.Count)
}

func TestCart_BadRequests(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/cart/items", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, rec).Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequestDTO{Name: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_product_id", decode[ErrorResponse](t, rec).Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/cart/packages", AddPackageRequestDTO{PackageID: "99"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/cart/promo", PromoRequestDTO{Code: "NOPE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_promo", decode[ErrorResponse](t, rec).Code)
}

func TestCheckout_EmptyCartSendsNoPaymentRequest(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/checkout/pay", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_cart", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, 0, fx.payments.calls())
}

func TestCheckout_ValidationError(t *testing.T) {
	fx := newFixture(t)
	require.Equal(t, http.StatusCreated, fx.do(t, http.MethodPost, "/api/v1/cart/packages", AddPackageRequestDTO{PackageID: "2"}).Code)

	rec := fx.do(t, http.MethodPost, "/api/v1/checkout/details", checkout.CustomerDetails{FullName: "Ama", ContactEmail: "ama@example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Code)
	assert.Equal(t, "platform", resp.Details)
}

func (fx *fixture) readyToPay(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusCreated, fx.do(t, http.MethodPost, "/api/v1/cart/packages", AddPackageRequestDTO{PackageID: "2"}).Code)
	details := checkout.CustomerDetails{FullName: "Ama", ContactEmail: "ama@example.com", Platform: "PC"}
	require.Equal(t, http.StatusOK, fx.do(t, http.MethodPost, "/api/v1/checkout/details", details).Code)
	require.Equal(t, http.StatusOK, fx.do(t, http.MethodPost, "/api/v1/checkout/method", SelectMethodRequestDTO{Method: checkout.MethodMobile}).Code)
}

func TestCheckout_PayAndComplete(t *testing.T) {
	fx := newFixture(t)
	fx.readyToPay(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/checkout/pay", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	redirect := decode[RedirectDTO](t, rec)
	assert.Equal(t, "ord-1", redirect.OrderID)
	assert.Equal(t, "https://pay.example/ord-1", redirect.PaymentLink)

	rec = fx.do(t, http.MethodGet, "/api/v1/checkout/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ord-1", decode[domain.PendingOrder](t, rec).OrderID)

	rec = fx.do(t, http.MethodPost, "/api/v1/checkout/complete", CompleteRequestDTO{OrderID: "other"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/checkout/complete", CompleteRequestDTO{OrderID: "ord-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[domain.OrderRecord](t, rec)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, 0, fx.cart.ItemsCount())

	rec = fx.do(t, http.MethodGet, "/api/v1/checkout/pending", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_PayWhileInFlight(t *testing.T) {
	fx := newFixture(t)
	fx.readyToPay(t)
	release := make(chan struct{})
	fx.payments.m.Lock()
	fx.payments.block = release
	fx.payments.m.Unlock()

	first := make(chan int, 1)
	go func() {
		first <- fx.do(t, http.MethodPost, "/api/v1/checkout/pay", nil).Code
	}()
	require.Eventually(t, func() bool { return fx.payments.calls() == 1 }, time.Second, 5*time.Millisecond)

	rec := fx.do(t, http.MethodPost, "/api/v1/checkout/pay", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "payment_in_flight", decode[ErrorResponse](t, rec).Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-first)
	assert.Equal(t, 1, fx.payments.calls())
}

func TestCheckout_WhatsApp(t *testing.T) {
	fx := newFixture(t)
	fx.readyToPay(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/checkout/whatsapp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(decode[map[string]string](t, rec)["url"], "https://wa.me/22500000000?text="))
	assert.Equal(t, 0, fx.cart.ItemsCount())
}

func seedOrder(t *testing.T, fx *fixture, id string, status domain.OrderStatus) {
	t.Helper()
	require.NoError(t, fx.orders.Upsert(context.Background(), domain.OrderRecord{
		ID:     id,
		Date:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Status: status,
		Items:  []domain.CartItem{{ID: "1", Name: "1000 V-Bucks", UnitPrice: 3500, Quantity: 1}},
		Total:  3500,
	}))
}

func TestOrders_ReceiveAndReview(t *testing.T) {
	fx := newFixture(t)
	seedOrder(t, fx, "FN1", domain.OrderStatusPending)

	rec := fx.do(t, http.MethodPost, "/api/v1/orders/FN1/received", StatusRequestDTO{Confirm: false})
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/orders/FN1/received", StatusRequestDTO{Confirm: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusReceived, decode[domain.OrderRecord](t, rec).Status)

	rec = fx.do(t, http.MethodPost, "/api/v1/orders/FN1/not-received", StatusRequestDTO{Confirm: true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/orders/FN1/review", ReviewRequestDTO{Rating: 5, Comment: "Top"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = fx.do(t, http.MethodPost, "/api/v1/orders/FN1/review", ReviewRequestDTO{Rating: 4})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/reviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.ReviewEntry](t, rec), 1)

	rec = fx.do(t, http.MethodPost, "/api/v1/orders/NOPE/received", StatusRequestDTO{Confirm: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrders_Fragment(t *testing.T) {
	fx := newFixture(t)
	seedOrder(t, fx, "FN<b>", domain.OrderStatusPending)

	rec := fx.do(t, http.MethodGet, "/api/v1/orders/fragment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "order-card")
	assert.NotContains(t, rec.Body.String(), "FN<b>")
}

func TestChat_MessagesSendAndGone(t *testing.T) {
	fx := newFixture(t)
	seedOrder(t, fx, "FN1", domain.OrderStatusPending)
	fx.history.set([]domain.ChatMessage{{ID: "1", OrderID: "FN1", Sender: domain.SenderAdmin, Content: "<i>bonjour</i>"}}, nil)

	rec := fx.do(t, http.MethodPost, "/api/v1/chat/FN1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		rec := fx.do(t, http.MethodGet, "/api/v1/chat/FN1/messages", nil)
		return len(decode[ChatStateDTO](t, rec).Messages) == 1
	}, time.Second, 10*time.Millisecond)

	rec = fx.do(t, http.MethodGet, "/api/v1/chat/FN1/fragment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<i>")
	assert.Contains(t, rec.Body.String(), "&lt;i&gt;bonjour")

	rec = fx.do(t, http.MethodPost, "/api/v1/chat/FN1/messages", SendMessageRequestDTO{Content: "merci"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[ChatStateDTO](t, rec).Pending)

	fx.history.set(nil, fmt.Errorf("history: %w", api.ErrNotFound))
	require.Eventually(t, func() bool {
		rec := fx.do(t, http.MethodGet, "/api/v1/chat/FN1/messages", nil)
		return decode[ChatStateDTO](t, rec).State == "stopped"
	}, time.Second, 10*time.Millisecond)

	_, err := fx.orders.Get("FN1")
	assert.True(t, errors.Is(err, orders.ErrOrderNotFound))

	rec = fx.do(t, http.MethodPost, "/api/v1/chat/FN1/messages", SendMessageRequestDTO{Content: "allo"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestEvents_Drained(t *testing.T) {
	fx := newFixture(t)
	require.Equal(t, http.StatusCreated, fx.do(t, http.MethodPost, "/api/v1/cart/packages", AddPackageRequestDTO{PackageID: "1"}).Code)

	rec := fx.do(t, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evs := decode[[]eventDTO](t, rec)
	names := make([]string, 0, len(evs))
	for _, e := range evs {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "cart_changed")
	assert.Contains(t, names, "notification")

	rec = fx.do(t, http.MethodGet, "/api/v1/events", nil)
	assert.Empty(t, decode[[]eventDTO](t, rec))
}

func TestHealth(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "up", decode[healthResponse](t, rec).Backend)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	fx.backend.m.Lock()
	fx.backend.healthErr = errors.New("down")
	fx.backend.m.Unlock()
	rec = fx.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "down", decode[healthResponse](t, rec).Backend)
}

func TestShop_Limit(t *testing.T) {
	fx := newFixture(t)
	fx.backend.shop = []catalog.ShopItem{{ItemID: "a", Name: "Skin"}}

	rec := fx.do(t, http.MethodGet, "/api/v1/shop?limit=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalog.ShopItem](t, rec), 1)
	assert.Equal(t, []int{4}, fx.backend.limits)

	rec = fx.do(t, http.MethodGet, "/api/v1/shop?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDMiddleware_KeepsIncomingID(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = getRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}
