package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/finora/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"
)

const (
	providerName   = "stripe"
	defaultTimeout = 10 * time.Second
)

type Factory struct {
	log *zap.Logger
}

func NewFactory() *Factory {
	return &Factory{log: zap.L()}
}

func NewFactoryWithLogger(log *zap.Logger) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Factory{log: log}
}

func (f *Factory) Provider() string {
	return providerName
}

// NewAdapter builds a client bound to cfg. The SDK's package-level key is never set.
func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if apiKey == "" || secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     f.log.Named("stripe.sdk").Sugar(),
	}
	if base := strings.TrimSpace(cfg.APIBaseURL); base != "" {
		backendCfg.URL = stripe.String(base)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &Adapter{
		client: client.New(apiKey, &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		log:           f.log.Named("stripe.adapter"),
		webhookSecret: secret,
		successURL:    strings.TrimSpace(cfg.SuccessURL),
		cancelURL:     strings.TrimSpace(cfg.CancelURL),
		timeout:       timeout,
	}, nil
}

type Adapter struct {
	client        *client.API
	log           *zap.Logger
	webhookSecret string
	successURL    string
	cancelURL     string
	timeout       time.Duration
}

func (a *Adapter) Provider() string {
	return providerName
}

func (a *Adapter) EnsureCustomer(ctx context.Context, req paymentdomain.CustomerRequest) (string, error) {
	email := strings.TrimSpace(req.Email)
	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		return "", a.invalid("ensure_customer", "account id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if email != "" {
		list := &stripe.CustomerListParams{Email: stripe.String(email)}
		list.Context = ctx
		list.Limit = stripe.Int64(1)
		iter := a.client.Customers.List(list)
		if iter.Next() {
			return iter.Customer().ID, nil
		}
		if err := iter.Err(); err != nil {
			return "", a.fail("ensure_customer", err)
		}
	}

	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx
	params.AddMetadata("account_id", accountID)
	// Concurrent first-time calls for one account collapse into one customer.
	params.SetIdempotencyKey("customer-create-" + accountID)

	customer, err := a.client.Customers.New(params)
	if err != nil {
		return "", a.fail("ensure_customer", err)
	}
	return customer.ID, nil
}

func (a *Adapter) StartPaidSubscription(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSession, error) {
	if strings.TrimSpace(req.CustomerID) == "" || strings.TrimSpace(req.PriceRef) == "" {
		return paymentdomain.CheckoutSession{}, a.invalid("start_checkout", "customer and price are required")
	}

	successURL := firstNonEmpty(req.SuccessURL, a.successURL)
	cancelURL := firstNonEmpty(req.CancelURL, a.cancelURL)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	metadata := map[string]string{
		"account_id":         req.AccountID,
		"plan":               req.Plan,
		"checkout_reference": req.Reference,
	}
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(req.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceRef), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}
	if req.Reference != "" {
		params.SetIdempotencyKey("checkout-" + req.Reference)
	}

	session, err := a.client.CheckoutSessions.New(params)
	if err != nil {
		return paymentdomain.CheckoutSession{}, a.fail("start_checkout", err)
	}

	out := paymentdomain.CheckoutSession{SessionID: session.ID, URL: session.URL}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	return out, nil
}

func (a *Adapter) ChangeSubscriptionItem(ctx context.Context, subscriptionID, newPriceRef string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	get := &stripe.SubscriptionParams{}
	get.Context = ctx
	sub, err := a.client.Subscriptions.Get(subscriptionID, get)
	if err != nil {
		return a.fail("change_subscription_item", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return &paymentdomain.ProviderError{
			Provider:  providerName,
			Operation: "change_subscription_item",
			Code:      "subscription_item_missing",
			Message:   "subscription has no items",
		}
	}

	update := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(sub.Items.Data[0].ID), Price: stripe.String(newPriceRef)},
		},
		ProrationBehavior: stripe.String("none"),
	}
	update.Context = ctx
	if _, err := a.client.Subscriptions.Update(subscriptionID, update); err != nil {
		return a.fail("change_subscription_item", err)
	}
	return nil
}

func (a *Adapter) CancelSubscription(ctx context.Context, subscriptionID string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := a.client.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return a.fail("cancel_subscription", err)
	}
	return nil
}

func (a *Adapter) ResolvePlanName(ctx context.Context, priceRef string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := &stripe.PriceParams{}
	params.Context = ctx
	params.AddExpand("product")
	price, err := a.client.Prices.Get(priceRef, params)
	if err != nil {
		return "", a.fail("resolve_plan_name", err)
	}
	if price.Product != nil && strings.TrimSpace(price.Product.Name) != "" {
		return price.Product.Name, nil
	}
	if price.Product == nil || price.Product.ID == "" {
		return "", &paymentdomain.ProviderError{
			Provider:  providerName,
			Operation: "resolve_plan_name",
			Code:      "product_missing",
			Message:   "price has no product",
		}
	}

	productParams := &stripe.ProductParams{}
	productParams.Context = ctx
	product, err := a.client.Products.Get(price.Product.ID, productParams)
	if err != nil {
		return "", a.fail("resolve_plan_name", err)
	}
	return product.Name, nil
}

func (a *Adapter) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	if strings.TrimSpace(customerID) == "" || strings.TrimSpace(paymentMethodID) == "" {
		return a.invalid("attach_payment_method", "customer and payment method are required")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	get := &stripe.PaymentMethodParams{}
	get.Context = ctx
	method, err := a.client.PaymentMethods.Get(paymentMethodID, get)
	if err != nil {
		return a.fail("attach_payment_method", err)
	}

	owner := ""
	if method.Customer != nil {
		owner = method.Customer.ID
	}
	switch owner {
	case customerID:
	case "":
		attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
		attach.Context = ctx
		if _, err := a.client.PaymentMethods.Attach(paymentMethodID, attach); err != nil {
			return a.fail("attach_payment_method", err)
		}
	default:
		return &paymentdomain.ProviderError{
			Provider:  providerName,
			Operation: "attach_payment_method",
			Code:      "payment_method_in_use",
			Message:   "payment method belongs to another customer",
		}
	}

	update := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	update.Context = ctx
	if _, err := a.client.Customers.Update(customerID, update); err != nil {
		return a.fail("attach_payment_method", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

var _ paymentdomain.Gateway = (*Adapter)(nil)
