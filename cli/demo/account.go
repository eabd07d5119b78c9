// Package demo holds the bank account aggregate used by `kestrel demo`.
package demo

import (
	"errors"

	"github.com/kestrel-es/kestrel"
)

// AggregateType is the stream category of Account.
const AggregateType = "Account"

// AccountOpened is the first event of every account.
type AccountOpened struct {
	kestrel.EventBase
	Owner string `json:"owner" msgpack:"owner"`
}

// MoneyDeposited adds to the balance.
type MoneyDeposited struct {
	kestrel.EventBase
	Amount int64 `json:"amount" msgpack:"amount"`
}

// MoneyWithdrawn subtracts from the balance.
type MoneyWithdrawn struct {
	kestrel.EventBase
	Amount int64 `json:"amount" msgpack:"amount"`
}

// Events returns one example of each Account event, for serializer registration.
func Events() []interface{} {
	return []interface{}{AccountOpened{}, MoneyDeposited{}, MoneyWithdrawn{}}
}

var (
	ErrAlreadyOpen       = errors.New("demo: account already open")
	ErrNotOpen           = errors.New("demo: account not open")
	ErrInvalidAmount     = errors.New("demo: amount must be positive")
	ErrInsufficientFunds = errors.New("demo: insufficient funds")
)

// Account is a minimal bank account.
type Account struct {
	kestrel.AggregateRoot

	Owner   string
	Balance int64
	open    bool
}

// NewAccount returns a fresh account with its handlers registered.
func NewAccount() *Account {
	a := &Account{AggregateRoot: kestrel.NewAggregateRoot(AggregateType, nil)}

	// Registering typed handlers on a fresh root cannot fail.
	_ = kestrel.On(&a.AggregateRoot, func(e *AccountOpened) {
		a.Owner = e.Owner
		a.open = true
	})
	_ = kestrel.On(&a.AggregateRoot, func(e *MoneyDeposited) {
		a.Balance += e.Amount
	})
	_ = kestrel.On(&a.AggregateRoot, func(e *MoneyWithdrawn) {
		a.Balance -= e.Amount
	})

	return a
}

// Open opens the account for owner.
func (a *Account) Open(uow kestrel.UnitOfWork, owner string) error {
	if a.open {
		return ErrAlreadyOpen
	}
	return a.ApplyEvent(uow, &AccountOpened{Owner: owner})
}

// Deposit adds amount to the balance.
func (a *Account) Deposit(uow kestrel.UnitOfWork, amount int64) error {
	if !a.open {
		return ErrNotOpen
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return a.ApplyEvent(uow, &MoneyDeposited{Amount: amount})
}

// Withdraw takes amount from the balance.
func (a *Account) Withdraw(uow kestrel.UnitOfWork, amount int64) error {
	if !a.open {
		return ErrNotOpen
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > a.Balance {
		return ErrInsufficientFunds
	}
	return a.ApplyEvent(uow, &MoneyWithdrawn{Amount: amount})
}
