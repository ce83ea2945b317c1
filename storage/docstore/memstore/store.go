package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/trezcool/darasa/storage/docstore"
)

type (
	// Store is an in-memory docstore.Store for local dev and tests.
	Store struct {
		sync.RWMutex
		collections map[string]collection
	}

	collection map[string]json.RawMessage
)

var _ docstore.Store = (*Store)(nil)

func Open() *Store {
	return &Store{collections: make(map[string]collection)}
}

func (s *Store) coll(name string) collection {
	c, ok := s.collections[name]
	if !ok {
		c = make(collection)
		s.collections[name] = c
	}
	return c
}

func (s *Store) Get(_ context.Context, coll, id string) (json.RawMessage, error) {
	s.RLock()
	defer s.RUnlock()

	if raw, ok := s.collections[coll][id]; ok {
		return raw, nil
	}
	return nil, docstore.ErrNotFound
}

func (s *Store) Create(_ context.Context, coll, id string, doc interface{}) error {
	raw, err := docstore.Marshal(doc)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	c := s.coll(coll)
	if _, ok := c[id]; ok {
		return docstore.ErrExists
	}
	c[id] = raw
	return nil
}

func (s *Store) Put(_ context.Context, coll, id string, doc interface{}) error {
	raw, err := docstore.Marshal(doc)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	s.coll(coll)[id] = raw
	return nil
}

func (s *Store) Update(_ context.Context, coll, id string, fields map[string]interface{}) error {
	s.Lock()
	defer s.Unlock()

	c := s.coll(coll)
	raw, ok := c[id]
	if !ok {
		return docstore.ErrNotFound
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	for k, v := range fields {
		m[k] = v
	}
	merged, err := json.Marshal(m)
	if err != nil {
		return err
	}
	c[id] = merged
	return nil
}

func (s *Store) Delete(_ context.Context, coll, id string) error {
	s.Lock()
	defer s.Unlock()
	delete(s.coll(coll), id)
	return nil
}

func (s *Store) Scan(_ context.Context, coll string, filters ...docstore.Filter) ([]json.RawMessage, error) {
	s.RLock()
	defer s.RUnlock()

	c := s.collections[coll]
	res := make([]json.RawMessage, 0, len(c))
	for _, raw := range c {
		if docstore.Matches(raw, filters) {
			res = append(res, raw)
		}
	}
	return res, nil
}
