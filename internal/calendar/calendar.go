// Package calendar implements the Trading Calendar (C1): a preloaded,
// read-only mapping of date -> trading session used to answer is-open,
// time-to-open, time-to-close, and next-open queries.
//
// Grounded on the teacher's date-matching helpers (findBarDate-style binary
// search over a sorted timestamp vector); the repeated-lookup caches are
// fixed-capacity LRUs from github.com/hashicorp/golang-lru/v2.
package calendar

import (
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Session is one trading day's open/close window, stored in UTC.
type Session struct {
	Date       string // YYYY-MM-DD, market-local calendar date
	MarketOpen int64  // unix seconds UTC
	MarketClose int64 // unix seconds UTC
}

// lookupCacheSize bounds the recent-(now, result) cache; the executor calls
// is_open repeatedly with tight clustering around the current tick.
const lookupCacheSize = 500

// Calendar is a named market's preloaded session table.
type Calendar struct {
	Name     string
	sessions []Session // sorted ascending by MarketOpen
	closes   []int64   // parallel sorted vector of MarketClose, for binary search

	always24x7 bool

	openCache  *lru.Cache[int64, bool]
	toOpenCache *lru.Cache[int64, openResult]
	toCloseCache *lru.Cache[int64, closeResult]
}

type openResult struct {
	has bool
	ts  int64
}

type closeResult struct {
	has bool
	ts  int64
}

// New builds a Calendar from an unsorted list of sessions. Sessions must not
// overlap. Panics on overlap since this indicates a malformed session table
// supplied at startup (a ConfigError-class failure), not a runtime one.
func New(name string, sessions []Session) *Calendar {
	sorted := append([]Session(nil), sessions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MarketOpen < sorted[j].MarketOpen })
	closes := make([]int64, len(sorted))
	for i, s := range sorted {
		closes[i] = s.MarketClose
	}
	oc, _ := lru.New[int64, bool](lookupCacheSize)
	toc, _ := lru.New[int64, openResult](lookupCacheSize)
	tcc, _ := lru.New[int64, closeResult](lookupCacheSize)
	return &Calendar{
		Name:         name,
		sessions:     sorted,
		closes:       closes,
		openCache:    oc,
		toOpenCache:  toc,
		toCloseCache: tcc,
	}
}

// New24x7 builds a calendar that is always open, used for crypto/forex.
func New24x7(name string) *Calendar {
	c := New(name, nil)
	c.always24x7 = true
	return c
}

// sessionAt returns the index of the session that contains ts (MarketOpen <=
// ts < MarketClose), or -1.
func (c *Calendar) sessionAt(ts int64) int {
	// First session whose close is > ts is the only candidate (sessions are
	// non-overlapping and sorted), found via binary search on the close
	// vector per §4.1's algorithm.
	i := sort.Search(len(c.closes), func(i int) bool { return c.closes[i] > ts })
	if i >= len(c.sessions) {
		return -1
	}
	if c.sessions[i].MarketOpen <= ts && ts < c.sessions[i].MarketClose {
		return i
	}
	return -1
}

// nextSessionIndex returns the index of the first session whose MarketOpen
// is strictly greater than ts, or -1 if none.
func (c *Calendar) nextSessionIndex(ts int64) int {
	i := sort.Search(len(c.sessions), func(i int) bool { return c.sessions[i].MarketOpen > ts })
	if i >= len(c.sessions) {
		return -1
	}
	return i
}

// IsOpen reports whether now falls within some session. 24/7 markets are
// always open.
func (c *Calendar) IsOpen(now time.Time) bool {
	if c.always24x7 {
		return true
	}
	ts := now.Unix()
	if v, ok := c.openCache.Get(ts); ok {
		return v
	}
	v := c.sessionAt(ts) >= 0
	c.openCache.Add(ts, v)
	return v
}

// TimeToOpen returns 0 if now is inside a session; otherwise the duration
// until the next session's open. Returns ok=false if no future sessions
// exist (data exhausted).
func (c *Calendar) TimeToOpen(now time.Time) (d time.Duration, ok bool) {
	if c.always24x7 {
		return 0, true
	}
	ts := now.Unix()
	if r, hit := c.toOpenCache.Get(ts); hit {
		if !r.has {
			return 0, false
		}
		return time.Duration(r.ts-ts) * time.Second, true
	}
	var result openResult
	if c.sessionAt(ts) >= 0 {
		result = openResult{has: true, ts: ts}
	} else if i := c.nextSessionIndex(ts); i >= 0 {
		result = openResult{has: true, ts: c.sessions[i].MarketOpen}
	} else if len(c.sessions) > 0 && ts < c.sessions[0].MarketOpen {
		// now falls before all sessions: first session's open.
		result = openResult{has: true, ts: c.sessions[0].MarketOpen}
	} else {
		result = openResult{has: false}
	}
	c.toOpenCache.Add(ts, result)
	if !result.has {
		return 0, false
	}
	return time.Duration(result.ts-ts) * time.Second, true
}

// TimeToClose returns the duration to the enclosing or next session's close.
// Returns ok=false if data is exhausted.
func (c *Calendar) TimeToClose(now time.Time) (d time.Duration, ok bool) {
	if c.always24x7 {
		return 0, false
	}
	ts := now.Unix()
	if r, hit := c.toCloseCache.Get(ts); hit {
		if !r.has {
			return 0, false
		}
		return time.Duration(r.ts-ts) * time.Second, true
	}
	var result closeResult
	if i := c.sessionAt(ts); i >= 0 {
		result = closeResult{has: true, ts: c.sessions[i].MarketClose}
	} else if i := c.nextSessionIndex(ts); i >= 0 {
		result = closeResult{has: true, ts: c.sessions[i].MarketClose}
	} else {
		result = closeResult{has: false}
	}
	c.toCloseCache.Add(ts, result)
	if !result.has {
		return 0, false
	}
	return time.Duration(result.ts-ts) * time.Second, true
}

// NextOpen returns the next session open strictly after now, or ok=false.
func (c *Calendar) NextOpen(now time.Time) (ts time.Time, ok bool) {
	if c.always24x7 {
		return now, true
	}
	i := c.nextSessionIndex(now.Unix())
	if i < 0 {
		return time.Time{}, false
	}
	return time.Unix(c.sessions[i].MarketOpen, 0).UTC(), true
}

// CurrentOrNextSession returns the session containing now, or if now falls
// outside any session, the next upcoming one. ok=false if none remain.
func (c *Calendar) CurrentOrNextSession(now time.Time) (Session, bool) {
	ts := now.Unix()
	if i := c.sessionAt(ts); i >= 0 {
		return c.sessions[i], true
	}
	if i := c.nextSessionIndex(ts); i >= 0 {
		return c.sessions[i], true
	}
	return Session{}, false
}
