// Package storetest holds behaviour checks shared by every shortlink.Store driver.
package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipr.local/internal/app/shortlink"
)

// Run exercises newStore against the Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) shortlink.Store) {
	t.Run("InsertAndFind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec, err := s.Insert(ctx, shortlink.Record{LongURL: "https://example.com/a", ShortID: "AbCd1234", CustomAlias: "demo"})
		require.NoError(t, err)
		assert.NotZero(t, rec.ID)
		assert.Zero(t, rec.ClickCount)
		assert.False(t, rec.CreatedAt.IsZero())

		got, err := s.FindByShortID(ctx, "AbCd1234")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "https://example.com/a", got.LongURL)
		assert.Equal(t, "demo", got.CustomAlias)

		got, err = s.FindByAlias(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.FindByShortID(ctx, "nope0000")
		assert.ErrorIs(t, err, shortlink.ErrNotFound)
		_, err = s.FindByAlias(ctx, "nope")
		assert.ErrorIs(t, err, shortlink.ErrNotFound)
	})

	t.Run("AliasIsOptional", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Insert(ctx, shortlink.Record{LongURL: "https://a.example", ShortID: "aaaaaaaa"})
		require.NoError(t, err)
		_, err = s.Insert(ctx, shortlink.Record{LongURL: "https://b.example", ShortID: "bbbbbbbb"})
		require.NoError(t, err, "two records without alias must not collide")

		_, err = s.FindByAlias(ctx, "")
		assert.ErrorIs(t, err, shortlink.ErrNotFound)
	})

	t.Run("Conflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Insert(ctx, shortlink.Record{LongURL: "https://a.example", ShortID: "aaaaaaaa", CustomAlias: "taken"})
		require.NoError(t, err)

		_, err = s.Insert(ctx, shortlink.Record{LongURL: "https://b.example", ShortID: "bbbbbbbb", CustomAlias: "taken"})
		var ce *shortlink.ConflictError
		require.True(t, errors.As(err, &ce), "got %v", err)
		assert.Equal(t, shortlink.FieldCustomAlias, ce.Field)

		_, err = s.Insert(ctx, shortlink.Record{LongURL: "https://c.example", ShortID: "aaaaaaaa"})
		require.True(t, errors.As(err, &ce), "got %v", err)
		assert.Equal(t, shortlink.FieldShortID, ce.Field)
		assert.ErrorIs(t, err, shortlink.ErrConflict)

		// the failed inserts left nothing behind
		_, err = s.FindByShortID(ctx, "bbbbbbbb")
		assert.ErrorIs(t, err, shortlink.ErrNotFound)
	})

	t.Run("RecordClicks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec, err := s.Insert(ctx, shortlink.Record{LongURL: "https://a.example", ShortID: "aaaaaaaa", CustomAlias: "alias-a"})
		require.NoError(t, err)

		now := time.Now().UTC().Truncate(time.Millisecond)
		err = s.RecordClicks(ctx, []shortlink.Click{
			{Token: "aaaaaaaa", ClickedAt: now, UserAgent: "ua-1"},
			{Token: "alias-a", ClickedAt: now.Add(time.Second), UserAgent: "ua-2", Referer: "https://ref.example"},
			{Token: "unknown", ClickedAt: now},
		})
		require.NoError(t, err)

		got, err := s.FindByShortID(ctx, "aaaaaaaa")
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.ClickCount)

		clicks, err := s.ListClicks(ctx, rec.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, clicks, 2)
		assert.Equal(t, "ua-2", clicks[0].UserAgent, "newest first")
		assert.Equal(t, "https://ref.example", clicks[0].Referer)
		assert.Greater(t, clicks[0].ID, clicks[1].ID)

		page, err := s.ListClicks(ctx, rec.ID, 10, clicks[0].ID)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, clicks[1].ID, page[0].ID)
	})

	t.Run("ClickTieBreak", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		owner, err := s.Insert(ctx, shortlink.Record{LongURL: "https://owner.example", ShortID: "shared00"})
		require.NoError(t, err)
		other, err := s.Insert(ctx, shortlink.Record{LongURL: "https://other.example", ShortID: "other000", CustomAlias: "shared00"})
		require.NoError(t, err)

		require.NoError(t, s.RecordClicks(ctx, []shortlink.Click{{Token: "shared00", ClickedAt: time.Now()}}))

		got, err := s.FindByShortID(ctx, owner.ShortID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, got.ClickCount)
		got, err = s.FindByShortID(ctx, other.ShortID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, got.ClickCount)
	})

	t.Run("ForEachToken", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Insert(ctx, shortlink.Record{LongURL: "https://a.example", ShortID: "aaaaaaaa", CustomAlias: "x"})
		require.NoError(t, err)
		_, err = s.Insert(ctx, shortlink.Record{LongURL: "https://b.example", ShortID: "bbbbbbbb"})
		require.NoError(t, err)

		var tokens []string
		require.NoError(t, s.ForEachToken(ctx, func(tok string) { tokens = append(tokens, tok) }))
		sort.Strings(tokens)
		assert.Equal(t, []string{"aaaaaaaa", "bbbbbbbb", "x"}, tokens)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
