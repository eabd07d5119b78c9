// Package kestrel provides the state-management core of event-sourced
// aggregates, plus an event store facade to persist and rebuild them.
//
// An aggregate's state is derived entirely from replaying an ordered
// sequence of domain events. New events produced by business operations are
// stamped, kept as uncommitted changes, and reported to a unit of work until
// a store persists them and the aggregate accepts its changes.
//
// # Defining Events
//
// Events are structs embedding EventBase, applied by pointer:
//
//	type AccountOpened struct {
//	    kestrel.EventBase
//	    Owner string `json:"owner"`
//	}
//
//	type MoneyDeposited struct {
//	    kestrel.EventBase
//	    Amount int64 `json:"amount"`
//	}
//
// # Defining Aggregates
//
// Aggregates embed AggregateRoot and register one handler per event variant:
//
//	type Account struct {
//	    kestrel.AggregateRoot
//	    Owner   string
//	    Balance int64
//	}
//
//	func NewAccount() *Account {
//	    a := &Account{AggregateRoot: kestrel.NewAggregateRoot("Account", nil)}
//	    kestrel.On(&a.AggregateRoot, func(e *AccountOpened) { a.Owner = e.Owner })
//	    kestrel.On(&a.AggregateRoot, func(e *MoneyDeposited) { a.Balance += e.Amount })
//	    return a
//	}
//
//	func (a *Account) Deposit(uow kestrel.UnitOfWork, amount int64) error {
//	    return a.ApplyEvent(uow, &MoneyDeposited{Amount: amount})
//	}
//
// # Units of Work
//
// A Session is a UnitOfWork that remembers every dirty aggregate and saves
// them on Commit:
//
//	store := kestrel.New(memory.NewAdapter())
//	store.RegisterEvents(&AccountOpened{}, &MoneyDeposited{})
//
//	session := store.NewSession()
//	account := NewAccount()
//	_ = account.Open(session, "alice")
//	_ = account.Deposit(session, 100)
//	err := session.Commit(ctx)
//	// account.InitialVersion() == 2, no uncommitted events
//
// # Loading Aggregates
//
// A Repository rebuilds aggregates from their stored history:
//
//	accounts := kestrel.NewRepository(store, NewAccount)
//	account, err := accounts.Get(ctx, id)
package kestrel

// LibraryVersion returns the library version string.
func LibraryVersion() string {
	return "0.1.0"
}

// BuildStreamID creates a stream ID from an aggregate type and ID.
// This follows the convention: "{Type}-{ID}"
func BuildStreamID(aggregateType, aggregateID string) string {
	return aggregateType + "-" + aggregateID
}
