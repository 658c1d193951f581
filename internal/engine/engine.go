package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gsearch/internal/aggregate"
	"github.com/hyperifyio/gsearch/internal/metrics"
	"github.com/hyperifyio/gsearch/internal/search"
)

// ErrEmptyQuery is the only error Search returns: the query was blank after
// trimming and no tier ran.
var ErrEmptyQuery = errors.New("search query is empty")

const defaultTierTimeout = 10 * time.Second

// Quota gates the primary tier and is charged once per productive primary
// query.
type Quota interface {
	IsExhausted(ctx context.Context) bool
	Increment(ctx context.Context)
	Remaining(ctx context.Context) int
	Limit() int
}

// PageScraper extracts results from raw results-page markup.
type PageScraper interface {
	Attempt(ctx context.Context, page []byte) search.Outcome
}

// PageLoader supplies results-page markup when the caller passed none.
type PageLoader interface {
	Load(ctx context.Context, query string) ([]byte, error)
}

// Embedder builds the embed directive URL. It cannot fail.
type Embedder interface {
	URL(query string) string
}

// State is a step of the orchestration state machine.
type State int

const (
	Idle State = iota
	CheckingQuota
	TryingPrimary
	TryingAlternative
	TryingRawScrape
	Embedding
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckingQuota:
		return "checking_quota"
	case TryingPrimary:
		return "trying_primary"
	case TryingAlternative:
		return "trying_alternative"
	case TryingRawScrape:
		return "trying_rawscrape"
	case Embedding:
		return "embedding"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Attempt records one tier invocation for the response trace.
type Attempt struct {
	Tier    search.Tier        `json:"tier"`
	Outcome search.OutcomeKind `json:"outcome"`
	Reason  string             `json:"reason,omitempty"`
	Elapsed time.Duration      `json:"elapsed"`
}

// Response is either a result page (Results non-empty) or an embed directive
// (EmbedURL set). Remaining and Limit report primary quota usage when a quota
// is configured.
type Response struct {
	Query         string          `json:"query"`
	Results       []search.Result `json:"results,omitempty"`
	Source        search.Tier     `json:"source"`
	IsAlternative bool            `json:"isAlternative"`
	EmbedURL      string          `json:"embedUrl,omitempty"`
	Remaining     int             `json:"remaining"`
	Limit         int             `json:"limit"`
	RunID         string          `json:"runId"`
	Trace         []Attempt       `json:"trace"`
}

// Embedded reports whether the response is the terminal embed directive.
func (r Response) Embedded() bool { return r.EmbedURL != "" }

// Orchestrator walks the provider ladder for one query at a time. Tiers run
// strictly in order; a tier runs only after the previous one failed or came
// back empty.
type Orchestrator struct {
	Quota       Quota
	Primary     search.Provider
	Alternative search.Provider
	Scraper     PageScraper
	// Pages is optional; without it the scrape tier runs only on a page
	// handed to Search.
	Pages PageLoader
	Embed Embedder

	// TierTimeout bounds each provider attempt; a timeout is a Failure.
	TierTimeout time.Duration
	MaxResults  int
	Metrics     *metrics.Recorder
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

type run struct {
	query string
	page  []byte
	log   zerolog.Logger
	resp  Response
}

// Search resolves query to results or an embed directive. Provider failures
// never surface as errors; the only error is ErrEmptyQuery. page is optional
// raw results-page markup enabling the scrape tier.
func (o *Orchestrator) Search(ctx context.Context, query string, page []byte) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{}, ErrEmptyQuery
	}
	id := uuid.NewString()
	r := &run{
		query: query,
		page:  page,
		log:   o.logger().With().Str("run_id", id).Logger(),
		resp:  Response{Query: query, RunID: id},
	}
	state := CheckingQuota
	for state != Done {
		next := o.step(ctx, r, state)
		r.log.Debug().Stringer("from", state).Stringer("to", next).Msg("search transition")
		state = next
	}
	if o.Quota != nil {
		r.resp.Remaining = o.Quota.Remaining(ctx)
		r.resp.Limit = o.Quota.Limit()
		o.Metrics.QuotaRemaining(r.resp.Remaining)
	}
	o.Metrics.Served(r.resp.Source.String())
	r.log.Info().Stringer("source", r.resp.Source).Int("results", len(r.resp.Results)).Bool("embedded", r.resp.Embedded()).Msg("search served")
	return r.resp, nil
}

func (o *Orchestrator) step(ctx context.Context, r *run, s State) State {
	switch s {
	case CheckingQuota:
		if o.Primary == nil {
			return TryingAlternative
		}
		if o.Quota != nil && o.Quota.IsExhausted(ctx) {
			r.log.Info().Int("limit", o.Quota.Limit()).Msg("daily quota reached; skipping primary tier")
			return TryingAlternative
		}
		return TryingPrimary

	case TryingPrimary:
		results := o.attempt(ctx, r, search.TierPrimary, func(ctx context.Context) search.Outcome {
			return o.Primary.Attempt(ctx, r.query)
		})
		if len(results) == 0 {
			return TryingAlternative
		}
		if o.Quota != nil {
			// Charged only after the tier fully succeeded; survives caller cancellation.
			o.Quota.Increment(context.WithoutCancel(ctx))
		}
		r.serve(search.TierPrimary, results)
		return Done

	case TryingAlternative:
		if o.Alternative != nil {
			results := o.attempt(ctx, r, search.TierAlternative, func(ctx context.Context) search.Outcome {
				return o.Alternative.Attempt(ctx, r.query)
			})
			if len(results) > 0 {
				r.serve(search.TierAlternative, results)
				return Done
			}
		}
		if o.Scraper == nil {
			return Embedding
		}
		if len(r.page) == 0 && o.Pages != nil {
			r.page = o.loadPage(ctx, r)
		}
		if len(r.page) > 0 {
			return TryingRawScrape
		}
		return Embedding

	case TryingRawScrape:
		results := o.attempt(ctx, r, search.TierRawScrape, func(ctx context.Context) search.Outcome {
			return o.Scraper.Attempt(ctx, r.page)
		})
		if len(results) > 0 {
			r.serve(search.TierRawScrape, results)
			return Done
		}
		return Embedding

	case Embedding:
		r.resp.Source = search.TierEmbedded
		r.resp.IsAlternative = true
		r.resp.EmbedURL = o.embedder().URL(r.query)
		r.resp.Trace = append(r.resp.Trace, Attempt{Tier: search.TierEmbedded, Outcome: search.OutcomeSuccess})
		o.Metrics.TierAttempt(search.TierEmbedded.String(), search.OutcomeSuccess.String())
		return Done
	}
	return Done
}

// attempt runs one tier under the tier timeout and returns its normalized
// results. Failures, empty outcomes and results that do not survive
// normalization all come back as an empty slice.
func (o *Orchestrator) attempt(ctx context.Context, r *run, tier search.Tier, fn func(context.Context) search.Outcome) []search.Result {
	timeout := o.TierTimeout
	if timeout <= 0 {
		timeout = defaultTierTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out := fn(tctx)
	var results []search.Result
	if out.Kind == search.OutcomeSuccess {
		results = aggregate.Normalize(out.Results, o.MaxResults)
		if len(results) == 0 {
			out = search.Empty()
		}
	}
	a := Attempt{Tier: tier, Outcome: out.Kind, Elapsed: time.Since(start)}
	if out.Err != nil {
		a.Reason = out.Err.Error()
	}
	r.resp.Trace = append(r.resp.Trace, a)
	o.Metrics.TierAttempt(tier.String(), out.Kind.String())

	ev := r.log.Debug()
	if out.Kind == search.OutcomeFailure {
		ev = r.log.Warn().Err(out.Err)
	}
	ev.Stringer("tier", tier).Stringer("outcome", out.Kind).Dur("elapsed", a.Elapsed).Int("results", len(results)).Msg("tier attempt")
	return results
}

func (o *Orchestrator) loadPage(ctx context.Context, r *run) []byte {
	timeout := o.TierTimeout
	if timeout <= 0 {
		timeout = defaultTierTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	page, err := o.Pages.Load(lctx, r.query)
	if err != nil {
		r.log.Warn().Err(err).Msg("results page load failed")
		return nil
	}
	return page
}

func (r *run) serve(tier search.Tier, results []search.Result) {
	r.resp.Results = results
	r.resp.Source = tier
	r.resp.IsAlternative = tier != search.TierPrimary
}

func (o *Orchestrator) embedder() Embedder {
	if o.Embed != nil {
		return o.Embed
	}
	return search.EmbedPage{}
}

func (o *Orchestrator) logger() zerolog.Logger {
	if o.Logger != nil {
		return *o.Logger
	}
	return log.Logger
}
