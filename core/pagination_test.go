package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPagerRefreshRejectedWhileInFlight(t *testing.T) {
	p := NewPager(10)
	require.True(t, p.BeginRefresh())
	require.False(t, p.BeginRefresh())
	_, ok := p.BeginLoadMore()
	require.False(t, ok)
	p.FinishRefresh(10)
	require.True(t, p.BeginRefresh())
}

func TestPagerShortPageClearsHasMore(t *testing.T) {
	p := NewPager(10)
	require.True(t, p.BeginRefresh())
	p.FinishRefresh(9)
	require.False(t, p.HasMore())
	_, ok := p.BeginLoadMore()
	require.False(t, ok)
}

func TestPagerFullPageKeepsHasMore(t *testing.T) {
	p := NewPager(10)
	require.True(t, p.BeginRefresh())
	p.FinishRefresh(10)
	require.True(t, p.HasMore())
	offset, ok := p.BeginLoadMore()
	require.True(t, ok)
	require.Equal(t, 10, offset)
	p.FinishLoadMore(10)
	require.Equal(t, 20, p.Offset())
	require.True(t, p.Scrolled())
}

func TestPagerRefreshResetsOffset(t *testing.T) {
	p := NewPager(10)
	require.True(t, p.BeginRefresh())
	p.FinishRefresh(10)
	offset, ok := p.BeginLoadMore()
	require.True(t, ok)
	require.Equal(t, 10, offset)
	p.FinishLoadMore(10)

	require.True(t, p.BeginRefresh())
	p.FinishRefresh(10)
	require.Equal(t, 10, p.Offset())
	require.False(t, p.Scrolled())
}

func TestPagerFailKeepsPagingState(t *testing.T) {
	p := NewPager(10)
	require.True(t, p.BeginRefresh())
	p.FinishRefresh(10)
	if _, ok := p.BeginLoadMore(); !ok {
		t.Fatal("expected load-more claim")
	}
	p.Fail()
	require.Equal(t, 10, p.Offset())
	require.True(t, p.HasMore())
	offset, ok := p.BeginLoadMore()
	require.True(t, ok)
	require.Equal(t, 10, offset)
}

func TestPagerReset(t *testing.T) {
	p := NewPager(10)
	require.True(t, p.BeginRefresh())
	p.FinishRefresh(3)
	p.Reset()
	require.Equal(t, 0, p.Offset())
	require.True(t, p.HasMore())
	require.False(t, p.Scrolled())
}
