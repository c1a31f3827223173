// Package fetch retrieves message details concurrently and keeps a result,
// or an error marker, for every requested id.
package fetch

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/workspace-agent/internal/metrics"
)

// DefaultConcurrency bounds in-flight detail requests.
const DefaultConcurrency = 8

type messageGetter interface {
	GetMessage(ctx context.Context, msgID string) (*gmail.Message, error)
}

type htmlConverter interface {
	HTML2Text(raw []byte) (string, error)
}

// Result holds either the parsed detail of ID or the error that prevented it.
type Result struct {
	ID     string
	Detail *Detail
	Err    error
}

// Results maps every requested id to its Result.
type Results map[string]Result

// Ordered returns results in the order of ids, skipping duplicates.
func (r Results) Ordered(ids []string) []Result {
	out := make([]Result, 0, len(r))
	for _, id := range dedupe(ids) {
		if res, ok := r[id]; ok {
			out = append(out, res)
		}
	}

	return out
}

// PartialFailure returns nil when every fetch succeeded.
func (r Results) PartialFailure() *PartialFailure {
	pf := &PartialFailure{Failed: map[string]error{}}
	for id, res := range r {
		if res.Err != nil {
			pf.Failed[id] = res.Err
			continue
		}
		pf.Succeeded = append(pf.Succeeded, id)
	}
	if len(pf.Failed) == 0 {
		return nil
	}
	sort.Strings(pf.Succeeded)

	return pf
}

// PartialFailure describes a fetch batch where some ids failed.
type PartialFailure struct {
	Succeeded []string
	Failed    map[string]error
}

func (p *PartialFailure) Error() string {
	ids := make([]string, 0, len(p.Failed))
	for id := range p.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return fmt.Sprintf("%d of %d detail fetches failed: %s",
		len(p.Failed), len(p.Failed)+len(p.Succeeded), strings.Join(ids, ", "))
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithRate paces outgoing requests; perSecond <= 0 disables pacing.
func WithRate(perSecond float64, burst int) Option {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithConverter(c htmlConverter) Option {
	return func(f *Fetcher) { f.conv = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// Fetcher runs one GetMessage per id with bounded concurrency.
type Fetcher struct {
	getter      messageGetter
	conv        htmlConverter
	concurrency int
	limiter     *rate.Limiter
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// New creates a Fetcher reading messages from getter.
func New(getter messageGetter, opts ...Option) *Fetcher {
	f := &Fetcher{
		getter:      getter,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FetchAll fetches every distinct id. Per-id failures are recorded in the
// returned Results; the error is non-nil only when ctx is done, in which
// case no results are returned.
func (f *Fetcher) FetchAll(ctx context.Context, ids []string) (Results, error) {
	uniq := dedupe(ids)
	slots := make([]Result, len(uniq))

	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for i, id := range uniq {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			slots[i] = f.fetchOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch cancelled: %w", err)
	}

	results := make(Results, len(slots))
	for _, res := range slots {
		results[res.ID] = res
	}

	return results, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, id string) Result {
	res := Result{ID: id}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			res.Err = fmt.Errorf("limiter.Wait failed: %w", err)
			return res
		}
	}

	msg, err := f.getter.GetMessage(ctx, id)
	if err != nil {
		res.Err = fmt.Errorf("getter.GetMessage failed: %w", err)
	} else if res.Detail, err = ParseMessage(msg, f.conv); err != nil {
		res.Err = fmt.Errorf("ParseMessage failed: %w", err)
	}

	f.metrics.ObserveFetch(res.Err == nil)
	if res.Err != nil {
		f.logger.Warn("detail fetch failed", zap.String("id", id), zap.Error(res.Err))
	}

	return res
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}

	return out
}
