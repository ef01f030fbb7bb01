// Package registry drives the registry's asynchronous, paginated search UI:
// opening the search form, paging through the results grid and reading each
// row's detail view, recovering from the desynchronisations the UI is prone to.
package registry

import (
	"sort"
	"time"
)

// DefaultURL is the registry's cosmetics search entry point.
const DefaultURL = "https://pertento.fda.moph.go.th/FDA_SEARCH_CENTER/PRODUCT/FRM_SEARCH_CMT.aspx"

// Timeouts bounds every wait the navigation performs.
type Timeouts struct {
	OpenFirst    time.Duration // search form on the first open attempt
	OpenRetry    time.Duration // search form on later attempts
	SearchButton time.Duration
	SearchFirst  time.Duration // grid after the first submit
	SearchRetry  time.Duration // grid after a resubmit
	Idle         time.Duration // page stability after an action
	OpenIdle     time.Duration // page stability after a refresh
	Trigger      time.Duration // observable effect of a detail link
	Detail       time.Duration // required detail labels
	Page         time.Duration // fingerprint change after "next"
}

// Config is everything a Scraper needs; it is passed in explicitly rather
// than read from globals.
type Config struct {
	URL       string
	Operators []string
	Periods   []string
	// Fast shortens the detail and page-transition waits.
	Fast bool

	OpenRetries    int
	SearchAttempts int
	PageAttempts   int
	BackRetries    int

	Timeouts     Timeouts
	PollInterval time.Duration
	// Backoff is multiplied by the attempt number between open retries.
	Backoff time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		URL:     DefaultURL,
		Periods: []string{"68"},
		Fast:    true,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	patient := 60 * time.Second
	if c.Fast {
		patient = 45 * time.Second
	}
	t := &c.Timeouts
	setDur(&t.OpenFirst, 30*time.Second)
	setDur(&t.OpenRetry, 45*time.Second)
	setDur(&t.SearchButton, 10*time.Second)
	setDur(&t.SearchFirst, 120*time.Second)
	setDur(&t.SearchRetry, 180*time.Second)
	setDur(&t.Idle, 60*time.Second)
	setDur(&t.OpenIdle, 45*time.Second)
	setDur(&t.Trigger, 30*time.Second)
	setDur(&t.Detail, patient)
	setDur(&t.Page, patient)
	setDur(&c.PollInterval, 250*time.Millisecond)
	setDur(&c.Backoff, time.Second)
	setInt(&c.OpenRetries, 4)
	setInt(&c.SearchAttempts, 3)
	setInt(&c.PageAttempts, 3)
	setInt(&c.BackRetries, 2)
	if c.URL == "" {
		c.URL = DefaultURL
	}
	return c
}

func setDur(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}

func setInt(i *int, v int) {
	if *i <= 0 {
		*i = v
	}
}

// SortedPeriods returns the allowed periods in search order.
func (c Config) SortedPeriods() []string {
	out := append([]string(nil), c.Periods...)
	sort.Strings(out)
	return out
}
