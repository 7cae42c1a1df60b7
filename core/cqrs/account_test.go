package cqrs_test

import (
	"github.com/codewandler/axon-go/core/es"
	"github.com/codewandler/axon-go/core/es/assert"
)

// a minimal bank account: deposits are accepted for any account, withdrawals
// must be covered by the balance.

type (
	account struct {
		Open    bool `json:"open"`
		Balance int  `json:"balance"`
	}

	accountOpened struct {
		Owner string `json:"owner"`
	}
	deposited struct {
		Amount int `json:"amount"`
	}
	withdrawn struct {
		Amount int `json:"amount"`
	}

	openAccount struct {
		ID, Owner string
	}
	deposit struct {
		ID     string
		Amount int
		CmdID  string
		Meta   es.Metadata
	}
	withdraw struct {
		ID     string
		Amount int
	}
	noop         struct{ ID string }
	closeAccount struct{ ID string }
)

func (accountOpened) EventType() string { return "account.opened" }
func (deposited) EventType() string     { return "account.deposited" }
func (withdrawn) EventType() string     { return "account.withdrawn" }

func (c openAccount) AggregateID() string  { return c.ID }
func (c openAccount) CommandType() string  { return "account.open" }
func (c deposit) AggregateID() string      { return c.ID }
func (c deposit) CommandType() string      { return "account.deposit" }
func (c withdraw) AggregateID() string     { return c.ID }
func (c withdraw) CommandType() string     { return "account.withdraw" }
func (c noop) AggregateID() string         { return c.ID }
func (c noop) CommandType() string         { return "account.noop" }
func (c closeAccount) AggregateID() string { return c.ID }
func (c closeAccount) CommandType() string { return "account.close" }

func (c deposit) CommandID() string     { return c.CmdID }
func (c deposit) Metadata() es.Metadata { return c.Meta }

var accountAgg = es.AggregateFuncs[account]{
	Name: "account",
	EventDefs: []es.EventDef{
		es.Event[accountOpened](),
		es.Event[deposited](),
		es.Event[withdrawn](),
	},
	ApplyFn: func(s account, event any) (account, error) {
		switch e := event.(type) {
		case accountOpened:
			s.Open = true
		case deposited:
			s.Balance += e.Amount
		case withdrawn:
			s.Balance -= e.Amount
		default:
			return s, es.UnknownEvent(event)
		}
		return s, nil
	},
	DecideFn: func(s account, cmd es.Command) ([]any, error) {
		switch c := cmd.(type) {
		case openAccount:
			if err := es.Require(assert.False(s.Open, "not_open")); err != nil {
				return nil, err
			}
			return []any{accountOpened{Owner: c.Owner}}, nil
		case deposit:
			if err := es.Require(assert.GT(c.Amount, 0, "positive_amount")); err != nil {
				return nil, err
			}
			return []any{deposited{Amount: c.Amount}}, nil
		case withdraw:
			if c.Amount > s.Balance {
				return nil, es.Reject("insufficient funds")
			}
			return []any{withdrawn{Amount: c.Amount}}, nil
		case noop:
			return nil, nil
		default:
			return nil, es.UnknownCommand(cmd)
		}
	},
}
