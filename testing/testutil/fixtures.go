// Package testutil provides test utilities and fixtures for kestrel.
package testutil

import (
	"errors"

	"github.com/google/uuid"

	"github.com/kestrel-es/kestrel"
)

// AccountOpened event for testing.
type AccountOpened struct {
	kestrel.EventBase
	Owner string `json:"owner" msgpack:"owner"`
}

// Deposited event for testing.
type Deposited struct {
	kestrel.EventBase
	Amount int64 `json:"amount" msgpack:"amount"`
}

// Withdrawn event for testing.
type Withdrawn struct {
	kestrel.EventBase
	Amount int64 `json:"amount" msgpack:"amount"`
}

// AccountClosed event for testing.
type AccountClosed struct {
	kestrel.EventBase
	Reason string `json:"reason" msgpack:"reason"`
}

// Unhandled is an event no test aggregate has a handler for.
type Unhandled struct {
	kestrel.EventBase
}

// Business rule violations raised by Account.
var (
	ErrAccountAlreadyOpen = errors.New("account already open")
	ErrAccountNotOpen     = errors.New("account is not open")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("amount must be positive")
)

// AccountType is the aggregate type of Account.
const AccountType = "Account"

// Account is a test aggregate for E2E tests.
type Account struct {
	kestrel.AggregateRoot

	Owner   string
	Balance int64
	Open    bool
	Closed  bool
	Reason  string
}

// NewAccount creates a fresh Account with a generated ID.
func NewAccount() *Account {
	return NewAccountWithGenerator(nil)
}

// NewAccountWithID creates a fresh Account with the given ID.
func NewAccountWithID(id uuid.UUID) *Account {
	return NewAccountWithGenerator(kestrel.IDGeneratorFunc(func() uuid.UUID { return id }))
}

// NewAccountWithGenerator creates a fresh Account whose ID comes from gen.
func NewAccountWithGenerator(gen kestrel.IDGenerator) *Account {
	a := &Account{AggregateRoot: kestrel.NewAggregateRoot(AccountType, gen)}

	must(kestrel.On(&a.AggregateRoot, func(e *AccountOpened) {
		a.Owner = e.Owner
		a.Open = true
	}))
	must(kestrel.On(&a.AggregateRoot, func(e *Deposited) {
		a.Balance += e.Amount
	}))
	must(kestrel.On(&a.AggregateRoot, func(e *Withdrawn) {
		a.Balance -= e.Amount
	}))
	must(kestrel.On(&a.AggregateRoot, func(e *AccountClosed) {
		a.Open = false
		a.Closed = true
		a.Reason = e.Reason
	}))

	return a
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// OpenAccount opens the account for owner.
func (a *Account) OpenAccount(uow kestrel.UnitOfWork, owner string) error {
	if a.Open || a.Closed {
		return ErrAccountAlreadyOpen
	}
	return a.ApplyEvent(uow, &AccountOpened{Owner: owner})
}

// Deposit adds amount to the balance.
func (a *Account) Deposit(uow kestrel.UnitOfWork, amount int64) error {
	if !a.Open {
		return ErrAccountNotOpen
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return a.ApplyEvent(uow, &Deposited{Amount: amount})
}

// Withdraw removes amount from the balance.
func (a *Account) Withdraw(uow kestrel.UnitOfWork, amount int64) error {
	if !a.Open {
		return ErrAccountNotOpen
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > a.Balance {
		return ErrInsufficientFunds
	}
	return a.ApplyEvent(uow, &Withdrawn{Amount: amount})
}

// CloseAccount closes the account.
func (a *Account) CloseAccount(uow kestrel.UnitOfWork, reason string) error {
	if !a.Open {
		return ErrAccountNotOpen
	}
	return a.ApplyEvent(uow, &AccountClosed{Reason: reason})
}

// AccountEvents returns one example of every Account event, for registration.
func AccountEvents() []interface{} {
	return []interface{}{AccountOpened{}, Deposited{}, Withdrawn{}, AccountClosed{}}
}

// RegisterTestEvents registers test event types with the store.
func RegisterTestEvents(store *kestrel.EventStore) {
	store.RegisterEvents(AccountEvents()...)
}

// NewAccountRepository returns a repository of Accounts backed by store.
func NewAccountRepository(store *kestrel.EventStore) *kestrel.Repository[*Account] {
	return kestrel.NewRepository(store, NewAccount)
}
