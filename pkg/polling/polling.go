// Package polling fans the configured operators out over a pool of
// workers, each with its own page session, and aggregates what they wrote.
package polling

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/browser"
	"github.com/cosreg/regwatch/pkg/export"
	"github.com/cosreg/regwatch/pkg/record"
	"github.com/cosreg/regwatch/pkg/registry"
)

// SessionFactory opens an independent page session. The returned func
// releases it.
type SessionFactory func(ctx context.Context) (browser.PageOracle, func(), error)

// Config holds everything ScrapeOperators needs.
type Config struct {
	Registry   registry.Config
	OutputDir  string
	Workers    int // defaults to 1; capped by operators and CPUs
	NewSession SessionFactory
	Log        utils.Logger // optional; nil = no logging

	// OnOperatorDone is called per-operator after its file is written
	// (from worker goroutines). Nil = no callback.
	OnOperatorDone func(res OperatorResult)
}

// OperatorResult is the outcome for one operator.
type OperatorResult struct {
	Operator string
	File     string
	Records  int
	Err      error
}

// Result holds the aggregated records and per-operator outcomes.
type Result struct {
	Records   []record.NotificationRecord
	Operators []OperatorResult // in configured order
	Errors    []error          // non-fatal errors
}

// ScrapeOperators scrapes every configured operator and writes one export
// per operator into OutputDir. With one worker the records are aggregated
// in-process; with more, they are read back from the output directory
// after all workers have finished.
func ScrapeOperators(ctx context.Context, cfg Config) (*Result, error) {
	log := utils.OrNop(cfg.Log)
	ops := cfg.Registry.Operators
	if cfg.NewSession == nil {
		return nil, errors.New("no session factory configured")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(ops) {
		workers = len(ops)
	}
	if n := runtime.NumCPU(); workers > n {
		workers = n
	}

	result := &Result{}
	if len(ops) == 0 {
		log.Warnf("No operators configured, nothing to scrape")
		return result, nil
	}

	if workers <= 1 {
		recs, outcomes, err := scrapeSequential(ctx, cfg, log)
		result.Records = recs
		result.Operators = outcomes
		result.Errors = collectErrors(outcomes)
		return result, err
	}

	outcomes := scrapeConcurrently(ctx, cfg, workers, log)
	result.Operators = outcomes
	result.Errors = collectErrors(outcomes)
	if err := ctx.Err(); err != nil {
		return result, err
	}

	recs, err := export.ReadOperatorFiles(cfg.OutputDir, ops, log)
	if err != nil {
		return result, fmt.Errorf("aggregate %s: %w", cfg.OutputDir, err)
	}
	result.Records = recs
	return result, nil
}

// scrapeSequential runs every operator on a single session.
func scrapeSequential(ctx context.Context, cfg Config, log utils.Logger) ([]record.NotificationRecord, []OperatorResult, error) {
	page, release, err := cfg.NewSession(ctx)
	if err != nil {
		err = fmt.Errorf("open session: %w", err)
		outcomes := make([]OperatorResult, len(cfg.Registry.Operators))
		for i, op := range cfg.Registry.Operators {
			outcomes[i] = OperatorResult{Operator: op, Err: err}
		}
		return nil, outcomes, err
	}
	defer release()

	scraper := registry.NewScraper(page, cfg.Registry, log)
	var all []record.NotificationRecord
	outcomes := make([]OperatorResult, 0, len(cfg.Registry.Operators))
	for _, op := range cfg.Registry.Operators {
		if err := ctx.Err(); err != nil {
			return all, outcomes, err
		}
		recs, res := processOneOperator(ctx, scraper, op, cfg, log)
		all = append(all, recs...)
		outcomes = append(outcomes, res)
		if cfg.OnOperatorDone != nil {
			cfg.OnOperatorDone(res)
		}
	}
	return all, outcomes, nil
}

// scrapeConcurrently processes operators using a worker pool. Every worker
// owns its session end-to-end and writes only its operators' files.
func scrapeConcurrently(ctx context.Context, cfg Config, workers int, log utils.Logger) []OperatorResult {
	ops := cfg.Registry.Operators
	opChan := make(chan int, len(ops))

	var mu sync.Mutex
	outcomes := make([]OperatorResult, len(ops))
	done := make([]bool, len(ops))
	var sessionErrs []error

	var wg sync.WaitGroup
	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			wlog := prefixLogger{log, fmt.Sprintf("[w%d] ", id)}

			page, release, err := cfg.NewSession(ctx)
			if err != nil {
				wlog.Errorf("Could not open session: %v", err)
				mu.Lock()
				sessionErrs = append(sessionErrs, err)
				mu.Unlock()
				return
			}
			defer release()

			scraper := registry.NewScraper(page, cfg.Registry, wlog)
			for i := range opChan {
				if ctx.Err() != nil {
					return
				}
				_, res := processOneOperator(ctx, scraper, ops[i], cfg, wlog)

				mu.Lock()
				outcomes[i] = res
				done[i] = true
				mu.Unlock()

				if cfg.OnOperatorDone != nil {
					cfg.OnOperatorDone(res)
				}
			}
		}(w)
	}

	for i := range ops {
		opChan <- i
	}
	close(opChan)
	wg.Wait()

	for i, ok := range done {
		if ok {
			continue
		}
		err := errors.New("not scraped")
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if len(sessionErrs) > 0 {
			err = fmt.Errorf("not scraped: %w", errors.Join(sessionErrs...))
		}
		outcomes[i] = OperatorResult{Operator: ops[i], Err: err}
	}
	return outcomes
}

// processOneOperator scrapes one operator and writes its export. A failed
// operator with nothing collected leaves any previous export untouched.
func processOneOperator(ctx context.Context, s *registry.Scraper, op string, cfg Config, log utils.Logger) ([]record.NotificationRecord, OperatorResult) {
	res := OperatorResult{Operator: op, File: export.OperatorFile(cfg.OutputDir, op)}

	recs, err := s.ScrapeOperator(ctx, op)
	res.Records = len(recs)
	if err != nil {
		log.Warnf("Operator %s finished with errors: %v", op, err)
		res.Err = err
		if len(recs) == 0 {
			res.File = ""
			return nil, res
		}
	}

	if werr := export.WriteRecords(res.File, recs); werr != nil {
		log.Errorf("Could not write %s: %v", res.File, werr)
		res.Err = errors.Join(res.Err, werr)
		return recs, res
	}
	log.Infof("Saved: %s (%d rows)", res.File, len(recs))
	return recs, res
}

func collectErrors(outcomes []OperatorResult) []error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Operator, o.Err))
		}
	}
	return errs
}

// prefixLogger tags each message with a worker id.
type prefixLogger struct {
	l      utils.Logger
	prefix string
}

func (p prefixLogger) Infof(f string, a ...interface{})  { p.l.Infof(p.prefix+f, a...) }
func (p prefixLogger) Warnf(f string, a ...interface{})  { p.l.Warnf(p.prefix+f, a...) }
func (p prefixLogger) Errorf(f string, a ...interface{}) { p.l.Errorf(p.prefix+f, a...) }
func (p prefixLogger) Debugf(f string, a ...interface{}) { p.l.Debugf(p.prefix+f, a...) }
