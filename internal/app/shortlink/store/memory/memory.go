// Package memory is an in-process Store for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"snipr.local/internal/app/shortlink"
)

type Store struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]*shortlink.Record
	byShort map[string]int64
	byAlias map[string]int64
	clicks  []clickRow
}

type clickRow struct {
	recordID int64
	click    shortlink.Click
}

func New() *Store {
	return &Store{
		records: make(map[int64]*shortlink.Record),
		byShort: make(map[string]int64),
		byAlias: make(map[string]int64),
	}
}

func (s *Store) Insert(_ context.Context, rec shortlink.Record) (shortlink.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byShort[rec.ShortID]; ok {
		return shortlink.Record{}, &shortlink.ConflictError{Field: shortlink.FieldShortID}
	}
	if rec.CustomAlias != "" {
		if _, ok := s.byAlias[rec.CustomAlias]; ok {
			return shortlink.Record{}, &shortlink.ConflictError{Field: shortlink.FieldCustomAlias}
		}
	}

	s.nextID++
	rec.ID = s.nextID
	rec.ClickCount = 0
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	stored := rec
	s.records[rec.ID] = &stored
	s.byShort[rec.ShortID] = rec.ID
	if rec.CustomAlias != "" {
		s.byAlias[rec.CustomAlias] = rec.ID
	}
	return rec, nil
}

func (s *Store) FindByShortID(_ context.Context, shortID string) (shortlink.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byShort[shortID]
	if !ok {
		return shortlink.Record{}, shortlink.ErrNotFound
	}
	return *s.records[id], nil
}

func (s *Store) FindByAlias(_ context.Context, alias string) (shortlink.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAlias[alias]
	if !ok {
		return shortlink.Record{}, shortlink.ErrNotFound
	}
	return *s.records[id], nil
}

func (s *Store) RecordClicks(_ context.Context, clicks []shortlink.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range clicks {
		id, ok := s.byShort[c.Token]
		if !ok {
			id, ok = s.byAlias[c.Token]
		}
		if !ok {
			continue
		}
		s.records[id].ClickCount++
		c.ID = int64(len(s.clicks) + 1)
		s.clicks = append(s.clicks, clickRow{recordID: id, click: c})
	}
	return nil
}

func (s *Store) ListClicks(_ context.Context, recordID int64, limit int, cursor int64) ([]shortlink.Click, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]shortlink.Click, 0, limit)
	for i := len(s.clicks) - 1; i >= 0 && len(out) < limit; i-- {
		row := s.clicks[i]
		if row.recordID != recordID {
			continue
		}
		if cursor > 0 && row.click.ID >= cursor {
			continue
		}
		out = append(out, row.click)
	}
	return out, nil
}

func (s *Store) ForEachToken(ctx context.Context, fn func(token string)) error {
	s.mu.RLock()
	tokens := make([]string, 0, len(s.byShort)+len(s.byAlias))
	for t := range s.byShort {
		tokens = append(tokens, t)
	}
	for t := range s.byAlias {
		tokens = append(tokens, t)
	}
	s.mu.RUnlock()

	sort.Strings(tokens)
	for _, t := range tokens {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(t)
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
