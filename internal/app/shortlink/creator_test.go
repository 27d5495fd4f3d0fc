package shortlink_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipr.local/internal/app/shortlink"
)

func TestCreateAndResolveRoundTrip(t *testing.T) {
	st := newCountingStore()
	cr := shortlink.NewCreator(st, "http://localhost:4000/")
	r := shortlink.NewResolver(st)

	out, err := cr.Create(context.Background(), "https://example.com/a/b", "demo")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000/demo", out.ShortURL)
	assert.Equal(t, "demo", out.ShortID)
	assert.Equal(t, "https://example.com/a/b", out.LongURL)
	assert.Len(t, out.Record.ShortID, shortlink.ShortIDLength, "a short id is generated even with an alias")

	for _, tok := range []string{"demo", out.Record.ShortID} {
		res, err := r.Resolve(context.Background(), tok, shortlink.Visit{})
		require.NoError(t, err, tok)
		assert.Equal(t, "https://example.com/a/b", res.LongURL)
	}
}

func TestCreateWithoutAlias(t *testing.T) {
	cr := shortlink.NewCreator(newCountingStore(), "https://sni.pr")

	out, err := cr.Create(context.Background(), "https://example.com", "   ")
	require.NoError(t, err)
	assert.Len(t, out.ShortID, shortlink.ShortIDLength)
	assert.Equal(t, "https://sni.pr/"+out.ShortID, out.ShortURL)
	assert.Empty(t, out.Record.CustomAlias, "blank alias is treated as absent")
}

func TestCreateTrimsAlias(t *testing.T) {
	cr := shortlink.NewCreator(newCountingStore(), "https://sni.pr")

	out, err := cr.Create(context.Background(), "https://example.com", "  spaced  ")
	require.NoError(t, err)
	assert.Equal(t, "spaced", out.ShortID)
}

func TestCreateValidation(t *testing.T) {
	cr := shortlink.NewCreator(newCountingStore(), "https://sni.pr", shortlink.RequireDottedHost(true))

	cases := []struct {
		name, url, alias, field string
	}{
		{"not a url", "not a url", "", "longUrl"},
		{"ftp", "ftp://example.com", "", "longUrl"},
		{"no host", "https://", "", "longUrl"},
		{"dotless host", "http://localhost/x", "", "longUrl"},
		{"bad alias chars", "https://example.com", "a/b", "customAlias"},
		{"alias too long", "https://example.com", strings.Repeat("a", 33), "customAlias"},
		{"reserved alias", "https://example.com", "api", "customAlias"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cr.Create(context.Background(), tc.url, tc.alias)
			require.ErrorIs(t, err, shortlink.ErrValidation)
			var ve *shortlink.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestCreateAllowsDotlessHostByDefault(t *testing.T) {
	cr := shortlink.NewCreator(newCountingStore(), "https://sni.pr")
	_, err := cr.Create(context.Background(), "http://localhost:8080/x", "")
	assert.NoError(t, err)
}

func TestCreateDuplicateAlias(t *testing.T) {
	st := newCountingStore()
	cr := shortlink.NewCreator(st, "https://sni.pr")

	_, err := cr.Create(context.Background(), "https://a.example", "taken")
	require.NoError(t, err)

	_, err = cr.Create(context.Background(), "https://b.example", "taken")
	require.ErrorIs(t, err, shortlink.ErrConflict)
	var ce *shortlink.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, shortlink.FieldCustomAlias, ce.Field)

	r := shortlink.NewResolver(st)
	res, err := r.Resolve(context.Background(), "taken", shortlink.Visit{})
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", res.LongURL, "the first mapping is untouched")
}

func TestCreateRetriesShortIDCollision(t *testing.T) {
	st := newCountingStore()
	seed(t, st, "collide0", "", "https://old.example")

	ids := []string{"collide0", "collide0", "fresh000"}
	gen := func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
	cr := shortlink.NewCreator(st, "https://sni.pr", shortlink.WithShortIDGenerator(gen))

	out, err := cr.Create(context.Background(), "https://new.example", "")
	require.NoError(t, err)
	assert.Equal(t, "fresh000", out.ShortID)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	st := newCountingStore()
	seed(t, st, "collide0", "", "https://old.example")
	cr := shortlink.NewCreator(st, "https://sni.pr", shortlink.WithShortIDGenerator(func() (string, error) {
		return "collide0", nil
	}))

	_, err := cr.Create(context.Background(), "https://new.example", "")
	assert.ErrorIs(t, err, shortlink.ErrConflict)
}

func TestCreatePrimesCacheAndFilter(t *testing.T) {
	st := newCountingStore()
	c := newMapCache()
	f := staticFilter{}
	cr := shortlink.NewCreator(st, "https://sni.pr", shortlink.WithPriming(c, time.Hour), shortlink.WithFilter(f))

	out, err := cr.Create(context.Background(), "https://example.com", "primed")
	require.NoError(t, err)

	for _, tok := range []string{"primed", out.Record.ShortID} {
		v, ok := c.get(tok)
		assert.True(t, ok, tok)
		assert.Equal(t, "https://example.com", v)
		assert.True(t, f.MightExist(tok), tok)
	}
}

func TestCreateDoesNotPrimeShadowedAlias(t *testing.T) {
	st := newCountingStore()
	seed(t, st, "shadow00", "", "https://owner.example")
	c := newMapCache()
	cr := shortlink.NewCreator(st, "https://sni.pr", shortlink.WithPriming(c, time.Hour))

	_, err := cr.Create(context.Background(), "https://other.example", "shadow00")
	require.NoError(t, err)
	_, ok := c.get("shadow00")
	assert.False(t, ok)
}

func TestCreateCacheFailureIsNotFatal(t *testing.T) {
	c := newMapCache()
	c.setErr = errBoom
	cr := shortlink.NewCreator(newCountingStore(), "https://sni.pr", shortlink.WithPriming(c, time.Hour))

	_, err := cr.Create(context.Background(), "https://example.com", "")
	assert.NoError(t, err)
}
