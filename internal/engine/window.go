package engine

import (
	"context"

	"github.com/efreitasn/isinprofit/internal/domain"
	"github.com/efreitasn/isinprofit/internal/store"
)

// DefaultEpochFloor is the earliest date a backward scan visits.
var DefaultEpochFloor = domain.NewDate(2000, 1, 1)

// SearchWindow bounds the dates a single match may traverse.
type SearchWindow struct {
	Floor   domain.Date
	Ceiling domain.Date
}

// Contains reports whether d lies within [Floor, Ceiling].
func (w SearchWindow) Contains(d domain.Date) bool {
	return !d.Before(w.Floor) && !d.After(w.Ceiling)
}

// direction is the step a dayPager takes between pages.
type direction int

const (
	backward direction = -1
	forward  direction = 1
)

// dayPage is the buys recorded for one ISIN on one date.
type dayPage struct {
	Date domain.Date
	Buys []domain.Execution
}

// dayPager walks dates from a start date in one direction and yields the
// buy executions of each date, one page per call to Next. The start date
// is always visited; later dates only while they stay inside the window
// bound for the direction of travel. When the reader can seek, dates
// without buys are skipped instead of fetched.
type dayPager struct {
	reader  store.Reader
	seeker  store.DateSeeker
	isin    string
	dir     direction
	window  SearchWindow
	cursor  domain.Date
	started bool
	done    bool
}

func newDayPager(reader store.Reader, isin string, start domain.Date, dir direction, window SearchWindow) *dayPager {
	seeker, _ := reader.(store.DateSeeker)
	return &dayPager{
		reader: reader,
		seeker: seeker,
		isin:   isin,
		dir:    dir,
		window: window,
		cursor: start,
	}
}

// Next returns the next page. ok is false once the window is exhausted.
func (p *dayPager) Next(ctx context.Context) (page dayPage, ok bool, err error) {
	if p.done {
		return dayPage{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return dayPage{}, false, err
	}

	if p.started {
		next, ok, err := p.advance(ctx)
		if err != nil {
			return dayPage{}, false, err
		}
		if !ok {
			p.done = true
			return dayPage{}, false, nil
		}
		p.cursor = next
	}
	p.started = true

	buys, err := p.reader.FetchExecutions(ctx, p.isin, domain.SideBuy, p.cursor)
	if err != nil {
		return dayPage{}, false, err
	}
	return dayPage{Date: p.cursor, Buys: buys}, true, nil
}

// advance moves past the current cursor to the next date worth fetching.
func (p *dayPager) advance(ctx context.Context) (domain.Date, bool, error) {
	next := p.cursor.AddDays(int(p.dir))
	if !p.inBound(next) {
		return domain.Date{}, false, nil
	}
	if p.seeker == nil {
		return next, true, nil
	}

	var (
		found domain.Date
		ok    bool
		err   error
	)
	if p.dir == backward {
		found, ok, err = p.seeker.PrevTradeDate(ctx, p.isin, domain.SideBuy, next)
	} else {
		found, ok, err = p.seeker.NextTradeDate(ctx, p.isin, domain.SideBuy, next)
	}
	if err != nil || !ok || !p.inBound(found) {
		return domain.Date{}, false, err
	}
	return found, true, nil
}

func (p *dayPager) inBound(d domain.Date) bool {
	if p.dir == backward {
		return !d.Before(p.window.Floor)
	}
	return !d.After(p.window.Ceiling)
}
