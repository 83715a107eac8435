package db

import "github.com/jmoiron/sqlx"

// Store is the persistence gateway used by the ticketing flows.
type Store struct {
	EventRepo
	OrderRepo
	PaymentRepo
}

func NewStore(db *sqlx.DB, outbox Outbox) Store {
	return Store{
		EventRepo:   NewEventRepo(db, outbox),
		OrderRepo:   NewOrderRepo(db, outbox),
		PaymentRepo: NewPaymentRepo(db, outbox),
	}
}
