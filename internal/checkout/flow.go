package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/storage"
	"go.uber.org/zap"
)

type Step int

const (
	StepDetails Step = iota + 1
	StepPayment
	StepProcessing
	StepComplete
)

const (
	MethodMobile = "mobile"
	MethodCrypto = "crypto"

	PaymentProvider = "lygos"
)

// CartSource is the part of the cart the checkout reads and clears.
type CartSource interface {
	Snapshot() domain.CartSnapshot
	HasCrewProduct() bool
	ClearCart(ctx context.Context) error
}

// OrderSink records finished checkouts in the order history.
type OrderSink interface {
	Get(id string) (domain.OrderRecord, error)
	Upsert(ctx context.Context, rec domain.OrderRecord) error
	SetStatus(ctx context.Context, id string, next domain.OrderStatus) error
}

type PaymentClient interface {
	CreatePayment(ctx context.Context, req api.PaymentRequest) (api.PaymentResponse, error)
	Health(ctx context.Context) error
}

type Settings struct {
	NotificationTTL time.Duration
	// ConnectingAfter and SlowAfter schedule the processing hints; the slow
	// hint also unlocks the retry button.
	ConnectingAfter time.Duration
	SlowAfter       time.Duration
	WarmupTimeout   time.Duration
	WhatsAppNumber  string
}

func (s Settings) withDefaults() Settings {
	if s.NotificationTTL == 0 {
		s.NotificationTTL = 3 * time.Second
	}
	if s.ConnectingAfter == 0 {
		s.ConnectingAfter = 1200 * time.Millisecond
	}
	if s.SlowAfter == 0 {
		s.SlowAfter = 6 * time.Second
	}
	if s.WarmupTimeout == 0 {
		s.WarmupTimeout = 10 * time.Second
	}
	return s
}

// Redirect is where the user goes to pay.
type Redirect struct {
	OrderID string
	URL     string
}

type attempt struct {
	id        uint64
	cancel    context.CancelFunc
	retryable bool
	timers    []*time.Timer
}

// Flow is the checkout state machine for one shopper.
type Flow struct {
	mu       sync.Mutex
	step     Step
	customer *domain.Customer
	method   string
	current  *attempt
	nextID   uint64

	cart     CartSource
	orders   OrderSink
	payments PaymentClient
	state    storage.Store
	bus      *events.Bus
	logger   *zap.Logger
	settings Settings
	now      func() time.Time
}

func NewFlow(cart CartSource, orders OrderSink, payments PaymentClient, state storage.Store, bus *events.Bus, logger *zap.Logger, settings Settings) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		step:     StepDetails,
		cart:     cart,
		orders:   orders,
		payments: payments,
		state:    state,
		bus:      bus,
		logger:   logger,
		settings: settings.withDefaults(),
		now:      time.Now,
	}
}

func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Customer returns the validated step 1 details, if any.
func (f *Flow) Customer() (domain.Customer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.customer == nil {
		return domain.Customer{}, false
	}
	return *f.customer, true
}

// DetectProductType is crew when the cart holds the crew package.
func (f *Flow) DetectProductType() domain.ProductType {
	if f.cart.HasCrewProduct() {
		return domain.ProductTypeCrew
	}
	return domain.ProductTypeVBucks
}

// SubmitDetails validates step 1 and moves to the payment method step.
func (f *Flow) SubmitDetails(ctx context.Context, d CustomerDetails) error {
	c, err := validateDetails(d, f.DetectProductType())
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			f.notifyError(ve.Message)
		}
		return err
	}

	f.mu.Lock()
	f.customer = &c
	f.mu.Unlock()

	f.setStep(StepPayment)
	return nil
}

// SelectPaymentMethod records the chosen method. Only mobile money is live.
func (f *Flow) SelectPaymentMethod(method string) error {
	switch method {
	case "":
		f.notifyError("Veuillez sélectionner un mode de paiement")
		return &ValidationError{Field: "payment", Message: "Veuillez sélectionner un mode de paiement"}
	case MethodCrypto:
		f.notifyError("Paiement Crypto - Coming Soon 🚀")
		return ErrComingSoon
	case MethodMobile:
		f.mu.Lock()
		f.method = method
		f.mu.Unlock()
		return nil
	default:
		f.notifyError("Méthode de paiement non supportée")
		return fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}

// CreateOrder builds the create-payment payload from a detached snapshot.
func CreateOrder(customer domain.Customer, snapshot domain.CartSnapshot) api.PaymentRequest {
	return api.PaymentRequest{
		Amount:   domain.SumItems(snapshot.Items),
		Items:    domain.CloneItems(snapshot.Items),
		Customer: customer,
	}
}

// Pay starts a payment attempt and blocks until the backend answered. A call
// made while an attempt is outstanding returns ErrPaymentInFlight, unless the
// slow hint already offered a retry.
func (f *Flow) Pay(ctx context.Context) (Redirect, error) {
	return f.pay(ctx, "")
}

// Retry is the retry button shown under the slow processing hint.
func (f *Flow) Retry(ctx context.Context) (Redirect, error) {
	return f.pay(ctx, "Nouvelle tentative de redirection en cours...")
}

func (f *Flow) pay(ctx context.Context, retryStatus string) (Redirect, error) {
	f.mu.Lock()
	if f.current != nil && !f.current.retryable {
		f.mu.Unlock()
		return Redirect{}, ErrPaymentInFlight
	}

	snapshot := f.cart.Snapshot()
	if snapshot.IsEmpty() {
		f.stopAttemptLocked()
		f.step = StepDetails
		f.mu.Unlock()
		f.notifyError("Votre panier est vide")
		f.bus.Emit(events.StepChanged{Step: int(StepDetails)})
		return Redirect{}, ErrEmptyCart
	}
	if f.customer == nil {
		f.step = StepDetails
		f.mu.Unlock()
		f.bus.Emit(events.StepChanged{Step: int(StepDetails)})
		return Redirect{}, ErrDetailsRequired
	}
	if f.method == "" {
		f.mu.Unlock()
		return Redirect{}, f.SelectPaymentMethod("")
	}

	f.stopAttemptLocked()
	attemptCtx, cancel := context.WithCancel(ctx)
	f.nextID++
	a := &attempt{id: f.nextID, cancel: cancel}
	f.current = a
	f.step = StepProcessing
	customer := *f.customer
	a.timers = []*time.Timer{
		time.AfterFunc(f.settings.ConnectingAfter, func() {
			f.hint(a.id, false, "Connexion à Lygos... Cela peut prendre quelques secondes.")
		}),
		time.AfterFunc(f.settings.SlowAfter, func() {
			f.hint(a.id, true, "Toujours en cours... Lygos peut mettre jusqu'à 10 secondes à s'ouvrir.")
		}),
	}
	f.mu.Unlock()

	f.bus.Emit(events.StepChanged{Step: int(StepProcessing)})
	f.status("Initialisation du paiement sécurisé...", false)
	if retryStatus != "" {
		f.status(retryStatus, false)
	}
	f.warmup(ctx)

	f.status("Création de la session de paiement sécurisée...", false)
	req := CreateOrder(customer, snapshot)
	res, err := f.payments.CreatePayment(attemptCtx, req)

	f.mu.Lock()
	if f.current != a {
		f.mu.Unlock()
		return Redirect{}, ErrSuperseded
	}
	f.stopAttemptLocked()
	f.mu.Unlock()

	if err == nil && (!res.Success || res.PaymentLink == "" || res.OrderID == "") {
		err = ErrPaymentFailed
	}
	if err != nil {
		msg := res.Error
		if msg == "" {
			msg = "Erreur lors de la création du paiement"
		}
		if !errors.Is(err, ErrPaymentFailed) && res.Error == "" {
			msg = "Erreur de connexion. Vérifiez que le serveur backend est démarré."
		}
		f.logger.Warn("payment creation failed", zap.Error(err))
		f.notifyError(msg)
		f.setStep(StepPayment)
		if errors.Is(err, ErrPaymentFailed) {
			return Redirect{}, fmt.Errorf("create payment: %w", err)
		}
		return Redirect{}, fmt.Errorf("create payment: %w: %w", ErrPaymentFailed, err)
	}

	pending := domain.PendingOrder{
		OrderID:         res.OrderID,
		Customer:        customer,
		Items:           req.Items,
		Amount:          req.Amount,
		CreatedAt:       f.now().UTC(),
		PaymentProvider: PaymentProvider,
	}
	if err := storage.SetJSON(ctx, f.state, storage.KeyPendingOrder, pending); err != nil {
		f.logger.Error("failed to save pending order", zap.String("order_id", res.OrderID), zap.Error(err))
		f.notifyError("Erreur lors de la création du paiement")
		f.setStep(StepPayment)
		return Redirect{}, fmt.Errorf("save pending order: %w", err)
	}

	f.logger.Info("payment link created",
		zap.String("order_id", res.OrderID),
		zap.Float64("amount", req.Amount))
	f.status("Redirection vers la page de paiement sécurisée...", false)
	return Redirect{OrderID: res.OrderID, URL: res.PaymentLink}, nil
}

// Reset abandons any outstanding attempt, as closing the checkout does.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAttemptLocked()
}

func (f *Flow) stopAttemptLocked() {
	if f.current == nil {
		return
	}
	for _, t := range f.current.timers {
		t.Stop()
	}
	f.current.cancel()
	f.current = nil
}

func (f *Flow) hint(id uint64, slow bool, msg string) {
	f.mu.Lock()
	if f.current == nil || f.current.id != id {
		f.mu.Unlock()
		return
	}
	if slow {
		f.current.retryable = true
	}
	f.mu.Unlock()
	f.status(msg, slow)
}

// warmup pings the backend without waiting for the answer.
func (f *Flow) warmup(ctx context.Context) {
	go func() {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.settings.WarmupTimeout)
		defer cancel()
		if err := f.payments.Health(wctx); err != nil {
			f.logger.Debug("backend warmup failed", zap.Error(err))
		}
	}()
}

func (f *Flow) setStep(s Step) {
	f.mu.Lock()
	f.step = s
	f.mu.Unlock()
	f.bus.Emit(events.StepChanged{Step: int(s)})
}

func (f *Flow) status(msg string, retry bool) {
	f.bus.Emit(events.ProcessingStatus{Message: msg, ShowRetry: retry})
}

func (f *Flow) notifyError(msg string) {
	f.bus.Emit(events.Notification{Level: events.LevelError, Message: msg, TTL: f.settings.NotificationTTL})
}

func (f *Flow) notify(msg string) {
	f.bus.Emit(events.Notification{Level: events.LevelSuccess, Message: msg, TTL: f.settings.NotificationTTL})
}
