package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/browser"
	"github.com/cosreg/regwatch/pkg/record"
)

// maxRowRetries bounds how often one row is retried after transient errors.
const maxRowRetries = 5

// Scraper collects every record of an operator across the allowed periods.
// One Scraper owns one page session and is not safe for concurrent use.
type Scraper struct {
	cfg    Config
	page   browser.PageOracle
	nav    *Navigator
	pager  *Pager
	detail *DetailExtractor
	log    utils.Logger
}

func NewScraper(page browser.PageOracle, cfg Config, log utils.Logger) *Scraper {
	cfg = cfg.withDefaults()
	log = utils.OrNop(log)
	nav := NewNavigator(page, cfg, log)
	return &Scraper{
		cfg:    cfg,
		page:   page,
		nav:    nav,
		pager:  NewPager(page, nav, cfg, log),
		detail: NewDetailExtractor(page, nav, cfg, log),
		log:    log,
	}
}

// ScrapeOperator searches every allowed period for operator and pages
// through the results. Records collected before a failure are returned
// with it. ErrSearchUnreachable stops the operator; a failed period is
// logged and the next one is tried.
func (s *Scraper) ScrapeOperator(ctx context.Context, operator string) ([]record.NotificationRecord, error) {
	s.log.Infof("Start (operator): %s", operator)
	var out []record.NotificationRecord
	var errs []error

	for _, period := range s.cfg.SortedPeriods() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rows, err := s.nav.Search(ctx, operator, period)
		if err != nil {
			if errors.Is(err, ErrSearchUnreachable) || ctx.Err() != nil {
				return out, fmt.Errorf("%s: %w", operator, err)
			}
			s.log.Errorf("%v", err)
			errs = append(errs, err)
			continue
		}
		if rows == 0 {
			s.log.Infof("  -> period %s: no records", period)
			continue
		}

		for {
			recs, err := s.scrapePage(ctx, operator, period)
			out = append(out, recs...)
			if err != nil {
				if errors.Is(err, ErrSearchUnreachable) || ctx.Err() != nil {
					return out, fmt.Errorf("%s: %w", operator, err)
				}
				s.log.Errorf("%s (period %s): %v", operator, period, err)
				errs = append(errs, err)
				break
			}
			if !s.pager.HasNext(ctx) {
				break
			}
			if err := s.pager.Next(ctx); err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				s.log.Warnf("  -> stop paging %s (period %s): %v", operator, period, err)
				break
			}
		}
	}

	s.log.Infof("Done (operator): %s -> %d records", operator, len(out))
	return out, errors.Join(errs...)
}

// scrapePage visits every matching row of the current grid page.
func (s *Scraper) scrapePage(ctx context.Context, operator, period string) ([]record.NotificationRecord, error) {
	if _, err := s.nav.WaitForRows(ctx, s.cfg.Timeouts.SearchFirst); err != nil {
		return nil, err
	}
	var out []record.NotificationRecord
	retries := 0

	for i := 1; ; {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		n, err := s.page.Count(ctx, xpRows)
		if err != nil {
			return out, fmt.Errorf("count rows: %w", err)
		}
		if n == 0 || i > n {
			break
		}

		if retries >= maxRowRetries {
			s.log.Warnf("     ! giving up on row %d/%d after %d resyncs", i, n, retries)
			i, retries = i+1, 0
			continue
		}

		text, err := s.page.Text(ctx, rowXPath(i))
		if err != nil {
			retries++
			if err := s.resync(ctx, operator, period, i, n, err); err != nil {
				return out, err
			}
			continue
		}
		no := record.NumberFromText(text)
		if no == "" || record.PeriodFromNumber(no) != period {
			i, retries = i+1, 0
			continue
		}

		s.log.Infof("  -> open detail | number=%s | row=%d/%d", no, i, n)
		rec, err := s.detail.Open(ctx, i, no, operator, period)
		read := rec.Number != ""
		if read {
			if record.InAllowedPeriods(rec.Number, s.cfg.Periods) {
				rec.OperatorQuery = operator
				out = append(out, rec)
			}
			i, retries = i+1, 0
		}
		if err == nil {
			continue
		}

		var openErr *DetailOpenError
		switch {
		case IsFatal(err) || ctx.Err() != nil:
			return out, err
		case errors.As(err, &openErr):
			s.log.Warnf("     ! skipping row: %v", openErr)
			i, retries = i+1, 0
		default:
			if !read {
				retries++
			}
			if rerr := s.resync(ctx, operator, period, i, n, err); rerr != nil {
				return out, rerr
			}
		}
	}
	return out, nil
}

// resync recovers from a transient row error; the caller retries the same row.
func (s *Scraper) resync(ctx context.Context, operator, period string, i, n int, cause error) error {
	s.log.Warnf("     ! resyncing grid (row %d/%d): %v", i, n, cause)
	_ = s.nav.WaitIdle(ctx, s.cfg.Timeouts.Idle)
	if err := s.nav.EnsureOnGrid(ctx, operator, period); err != nil {
		return err
	}
	if _, err := s.nav.WaitForRows(ctx, s.cfg.Timeouts.SearchFirst); err != nil {
		return err
	}
	return browser.Sleep(ctx, 200*time.Millisecond)
}
