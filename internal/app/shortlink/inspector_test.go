package shortlink_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipr.local/internal/app/shortlink"
)

func TestInspectorRecordDoesNotCountClicks(t *testing.T) {
	st := newCountingStore()
	seed(t, st, "AbCd1234", "insp", "https://example.com")
	in := shortlink.NewInspector(st)

	rec, err := in.Record(context.Background(), "insp")
	require.NoError(t, err)
	assert.Equal(t, "AbCd1234", rec.ShortID)
	assert.Zero(t, rec.ClickCount)

	_, err = in.Record(context.Background(), "missing")
	assert.ErrorIs(t, err, shortlink.ErrNotFound)
}

func TestInspectorClicksPaging(t *testing.T) {
	st := newCountingStore()
	seed(t, st, "AbCd1234", "", "https://example.com")
	base := time.Now()
	var clicks []shortlink.Click
	for i := 0; i < 5; i++ {
		clicks = append(clicks, shortlink.Click{Token: "AbCd1234", ClickedAt: base.Add(time.Duration(i) * time.Second)})
	}
	require.NoError(t, st.RecordClicks(context.Background(), clicks))
	in := shortlink.NewInspector(st)

	page, next, err := in.Clicks(context.Background(), "AbCd1234", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotZero(t, next)

	var all []shortlink.Click
	all = append(all, page...)
	for next != 0 {
		page, next, err = in.Clicks(context.Background(), "AbCd1234", 2, next)
		require.NoError(t, err)
		all = append(all, page...)
	}
	assert.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i-1].ID, all[i].ID)
	}
}
