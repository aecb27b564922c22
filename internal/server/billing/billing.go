// Package billing describes the payment processor the platform bills
// through. Checkout orchestration lives outside the core; the core keeps a
// customer reference per account and reacts to processor webhooks.
package billing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Customer struct {
	ID    string
	Email string
	Name  string
}

type Subscription struct {
	ID         string
	CustomerID string
	Active     bool
}

type CheckoutRequest struct {
	CustomerID string
	CourseID   string
	SuccessURL string
	CancelURL  string
}

// Processor is the payment processor collaborator.
type Processor interface {
	CreateCustomer(ctx context.Context, email, name string) (*Customer, error)
	UpdateCustomer(ctx context.Context, c *Customer) error
	DeleteCustomer(ctx context.Context, customerID string) error
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// CreateCheckout returns the URL the user is redirected to.
	CreateCheckout(ctx context.Context, r CheckoutRequest) (string, error)
}

var ErrUnknownCustomer = errors.New("unknown customer")

// Ledger is an in-process Processor used when no processor is configured.
type Ledger struct {
	mu            sync.Mutex
	customers     map[string]Customer
	subscriptions map[string]Subscription
}

func NewLedger() *Ledger {
	return &Ledger{customers: map[string]Customer{}, subscriptions: map[string]Subscription{}}
}

func (l *Ledger) CreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := Customer{ID: "cus_" + strings.ReplaceAll(uuid.NewString(), "-", ""), Email: email, Name: name}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.customers[c.ID] = c
	return &c, nil
}

func (l *Ledger) UpdateCustomer(_ context.Context, c *Customer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.customers[c.ID]; !ok {
		return ErrUnknownCustomer
	}
	l.customers[c.ID] = *c
	return nil
}

func (l *Ledger) DeleteCustomer(_ context.Context, customerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.customers[customerID]; !ok {
		return ErrUnknownCustomer
	}
	delete(l.customers, customerID)
	for id, s := range l.subscriptions {
		if s.CustomerID == customerID {
			delete(l.subscriptions, id)
		}
	}
	return nil
}

// Subscribe records an active subscription for customerID.
func (l *Ledger) Subscribe(customerID string) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.customers[customerID]; !ok {
		return Subscription{}, ErrUnknownCustomer
	}
	s := Subscription{ID: "sub_" + strings.ReplaceAll(uuid.NewString(), "-", ""), CustomerID: customerID, Active: true}
	l.subscriptions[s.ID] = s
	return s, nil
}

func (l *Ledger) ListSubscriptions(_ context.Context, customerID string) ([]Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Subscription
	for _, s := range l.subscriptions {
		if s.CustomerID == customerID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (l *Ledger) CancelSubscription(_ context.Context, subscriptionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.subscriptions[subscriptionID]
	if !ok {
		return errors.New("unknown subscription")
	}
	s.Active = false
	l.subscriptions[subscriptionID] = s
	return nil
}

func (l *Ledger) CreateCheckout(_ context.Context, r CheckoutRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.customers[r.CustomerID]; !ok {
		return "", ErrUnknownCustomer
	}
	return r.SuccessURL + "?session=cs_" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}
