// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roomsim

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/ManuGH/roomgate/internal/metrics"
)

// Ticket redemption failure modes.
var (
	ErrTicketUnknown = errors.New("roomsim: ticket unknown or expired")
)

// Ticket is a single-use admission grant: the URL handed back to a
// successful join/start submission resolves to exactly one of these.
type Ticket struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	Actor  string `json:"actor"`
}

// TicketStore keeps single-use join tickets in Badger with a TTL.
// Redemption deletes the ticket in the same transaction that reads it,
// so a replayed URL never admits twice.
type TicketStore struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenTicketStore opens the ticket database at dir. Tickets expire after
// ttl without redemption.
func OpenTicketStore(dir string, ttl time.Duration) (*TicketStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}
	return &TicketStore{db: db, ttl: ttl}, nil
}

func (s *TicketStore) Close() error { return s.db.Close() }

func ticketKey(id string) []byte { return []byte("tkt:" + id) }

// Issue creates a ticket for the given room and actor label.
func (s *TicketStore) Issue(roomID, actor string) (Ticket, error) {
	t := Ticket{ID: uuid.New().String(), RoomID: roomID, Actor: actor}
	buf, err := json.Marshal(t)
	if err != nil {
		return Ticket{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(ticketKey(t.ID), buf).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket store: issue: %w", err)
	}
	metrics.SimTicketsIssued.Inc()
	return t, nil
}

// Redeem consumes a ticket. A second redemption, or redemption after the
// TTL, yields ErrTicketUnknown; Badger's lazy expiry and a genuine replay
// are indistinguishable to the caller, which is the point.
func (s *TicketStore) Redeem(id string) (Ticket, error) {
	var out Ticket
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(ticketKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		}); err != nil {
			return err
		}
		return txn.Delete(ticketKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.SimTicketsRedeemed.WithLabelValues("replayed").Inc()
		return Ticket{}, ErrTicketUnknown
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket store: redeem: %w", err)
	}
	metrics.SimTicketsRedeemed.WithLabelValues("ok").Inc()
	return out, nil
}
