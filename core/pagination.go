package core

import "sync"

type pageState int

const (
	pageIdle pageState = iota
	pageLoading
	pageLoadingMore
	pageLoaded
)

// Pager is the state machine guarding one offset-paged view. The source of
// the races it prevents is the mix of timer-driven refreshes and user-driven
// load-more: both funnel through Begin* guards, and misuse is a silent no-op
// rather than an error.
type Pager struct {
	mu       sync.Mutex
	state    pageState
	offset   int
	hasMore  bool
	pageSize int
}

// NewPager builds a pager for the given page size.
func NewPager(pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Pager{pageSize: pageSize, hasMore: true}
}

// PageSize reports the configured page size.
func (p *Pager) PageSize() int { return p.pageSize }

// BeginRefresh claims the pager for a full reload. It reports false while
// another load is in flight.
func (p *Pager) BeginRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pageLoading || p.state == pageLoadingMore {
		return false
	}
	p.state = pageLoading
	return true
}

// BeginLoadMore claims the pager for an append and returns the offset to
// request. It reports false while a load is in flight or when the previous
// page was short.
func (p *Pager) BeginLoadMore() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == pageLoading || p.state == pageLoadingMore {
		return 0, false
	}
	if !p.hasMore {
		return 0, false
	}
	p.state = pageLoadingMore
	return p.offset, true
}

// FinishRefresh records a completed reload: the offset restarts at the
// returned count and a short page clears hasMore.
func (p *Pager) FinishRefresh(returned int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = returned
	p.hasMore = returned >= p.pageSize
	p.state = pageLoaded
}

// FinishLoadMore records a completed append.
func (p *Pager) FinishLoadMore(returned int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset += returned
	p.hasMore = returned >= p.pageSize
	p.state = pageLoaded
}

// Fail releases an in-flight claim without touching offset or hasMore, so
// the next tick can try again against unchanged state.
func (p *Pager) Fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offset == 0 {
		p.state = pageIdle
		return
	}
	p.state = pageLoaded
}

// Scrolled reports whether the consumer has advanced beyond the first page.
// Timer-driven refreshes consult this before touching the view.
func (p *Pager) Scrolled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset > p.pageSize
}

// HasMore reports whether another page is expected.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Offset reports the current paging offset.
func (p *Pager) Offset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// Reset returns the pager to its initial state, re-enabling timer refreshes
// after a scope switch.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = pageIdle
	p.offset = 0
	p.hasMore = true
}
