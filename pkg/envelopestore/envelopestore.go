// Package envelopestore persists per-market making envelopes in a local
// Badger KV so operator-applied parameters survive restarts.
package envelopestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/upmaker/jitgo/internal/domain"
)

const keyPrefix = "envelope:"

// Store is a thin Badger wrapper keyed by "envelope:<kind>:<index>".
type Store struct {
	db *badger.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("envelopestore: path is required")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// envelopeRecord is the stored JSON shape; kept separate from the domain
// type so the on-disk format stays stable.
type envelopeRecord struct {
	MaxPosition int64  `json:"max_position"`
	MinPosition int64  `json:"min_position"`
	Bid         int64  `json:"bid"`
	Ask         int64  `json:"ask"`
	PriceKind   string `json:"price_kind"`
	PostOnly    string `json:"post_only"`
}

func storeKey(market domain.MarketID) []byte {
	return []byte(fmt.Sprintf("%s%s:%d", keyPrefix, market.Kind, market.Index))
}

// Put writes or overwrites a market envelope.
func (s *Store) Put(market domain.MarketID, env domain.Envelope) error {
	if s == nil || s.db == nil {
		return errors.New("envelopestore: not opened")
	}
	rec := envelopeRecord{
		MaxPosition: env.MaxPosition,
		MinPosition: env.MinPosition,
		Bid:         env.Bid,
		Ask:         env.Ask,
		PriceKind:   env.PriceKind.String(),
		PostOnly:    env.PostOnly.String(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(market), data)
	})
}

// Get loads a market envelope. ok is false when the market has no record.
func (s *Store) Get(market domain.MarketID) (domain.Envelope, bool, error) {
	if s == nil || s.db == nil {
		return domain.Envelope{}, false, errors.New("envelopestore: not opened")
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(market))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Envelope{}, false, nil
	}
	if err != nil {
		return domain.Envelope{}, false, err
	}
	env, err := decodeRecord(data)
	if err != nil {
		return domain.Envelope{}, false, err
	}
	return env, true, nil
}

// Delete removes a market envelope. Missing keys are not an error.
func (s *Store) Delete(market domain.MarketID) error {
	if s == nil || s.db == nil {
		return errors.New("envelopestore: not opened")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(market))
	})
}

// All returns every stored envelope, for seeding the scheduler on startup.
func (s *Store) All() (map[domain.MarketID]domain.Envelope, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("envelopestore: not opened")
	}
	out := make(map[domain.MarketID]domain.Envelope)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			market, err := parseKey(string(item.Key()))
			if err != nil {
				continue // skip foreign keys rather than fail the whole load
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			env, err := decodeRecord(data)
			if err != nil {
				return fmt.Errorf("envelopestore: %s: %w", item.Key(), err)
			}
			out[market] = env
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func decodeRecord(data []byte) (domain.Envelope, error) {
	var rec envelopeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Envelope{}, err
	}
	priceKind, ok := domain.ParsePriceKind(rec.PriceKind)
	if !ok {
		return domain.Envelope{}, fmt.Errorf("bad price kind %q", rec.PriceKind)
	}
	postOnly, ok := domain.ParsePostOnlyMode(rec.PostOnly)
	if !ok {
		return domain.Envelope{}, fmt.Errorf("bad post only mode %q", rec.PostOnly)
	}
	return domain.Envelope{
		MaxPosition: rec.MaxPosition,
		MinPosition: rec.MinPosition,
		Bid:         rec.Bid,
		Ask:         rec.Ask,
		PriceKind:   priceKind,
		PostOnly:    postOnly,
	}, nil
}

func parseKey(key string) (domain.MarketID, error) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return domain.MarketID{}, fmt.Errorf("bad key %q", key)
	}
	kindStr, idxStr, ok := strings.Cut(rest, ":")
	if !ok {
		return domain.MarketID{}, fmt.Errorf("bad key %q", key)
	}
	kind, ok := domain.ParseMarketKind(kindStr)
	if !ok {
		return domain.MarketID{}, fmt.Errorf("bad market kind in key %q", key)
	}
	var idx uint16
	if _, err := fmt.Sscanf(idxStr, "%d", &idx); err != nil {
		return domain.MarketID{}, fmt.Errorf("bad market index in key %q", key)
	}
	return domain.MarketID{Kind: kind, Index: idx}, nil
}
