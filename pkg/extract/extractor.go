// Package extract orchestrates one extraction run end to end: endpoint
// resolution, pagination, normalization, and blob output, including the
// fan-out objects that require one upstream walk per parent entity.
package extract

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hublift/hublift/pkg/checkpoint"
	"github.com/hublift/hublift/pkg/clients"
	"github.com/hublift/hublift/pkg/config"
	"github.com/hublift/hublift/pkg/errors"
	"github.com/hublift/hublift/pkg/hubspot"
	"github.com/hublift/hublift/pkg/logger"
	"github.com/hublift/hublift/pkg/metrics"
	"github.com/hublift/hublift/pkg/normalize"
	"github.com/hublift/hublift/pkg/sink"
)

// DownstreamSignaler is notified when the upstream has no data at all, so
// schedulers can skip dependent work instead of treating the run as failed.
type DownstreamSignaler interface {
	Skip(ctx context.Context, reason string)
}

// LogSignaler is the default signaler; it only records the skip.
type LogSignaler struct{}

func (LogSignaler) Skip(ctx context.Context, reason string) {
	logger.WithContext(ctx).Warn("skipping downstream work", zap.String("reason", reason))
}

// Summary reports what one run did.
type Summary struct {
	RunID   string
	Object  string
	Skipped bool
	Pages   int
	Records int
	Flushes int
	Blobs   int
}

// Extractor runs one configured extraction.
type Extractor struct {
	cfg      *config.ExtractionConfig
	caller   hubspot.Caller
	writer   *sink.Writer
	store    checkpoint.Store
	retry    *clients.RetryPolicy
	signaler DownstreamSignaler
	resolver *hubspot.Resolver
	norm     *normalize.Normalizer

	runID string
	// flushSeq numbers intermediate blobs across the whole run so fan-out
	// walks never reuse a blob key.
	flushSeq int
	blobs    int
}

// New validates the object up front and wires the run.
func New(cfg *config.ExtractionConfig, caller hubspot.Caller, writer *sink.Writer,
	store checkpoint.Store, signaler DownstreamSignaler) (*Extractor, error) {
	resolver, err := hubspot.NewResolver(hubspot.ObjectType(cfg.Object))
	if err != nil {
		return nil, err
	}
	if signaler == nil {
		signaler = LogSignaler{}
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Extractor{
		cfg:      cfg,
		caller:   caller,
		writer:   writer,
		store:    store,
		retry:    clients.NewRetryPolicy(cfg.Reliability.MaxAttempts, cfg.InitialRetryDelay()),
		signaler: signaler,
		resolver: resolver,
		norm:     normalize.New(cfg.Object),
		runID:    runID,
	}, nil
}

// RunID returns the identifier scoping this run's checkpoints and logs.
func (e *Extractor) RunID() string {
	return e.runID
}

// Run executes the extraction and reports the outcome.
func (e *Extractor) Run(ctx context.Context) (*Summary, error) {
	ctx = context.WithValue(ctx, logger.RunIDKey, e.runID)
	ctx = context.WithValue(ctx, logger.ObjectKey, e.cfg.Object)
	log := logger.WithContext(ctx)
	log.Info("starting extraction run")

	var (
		summary *Summary
		err     error
	)
	switch hubspot.ObjectType(e.cfg.Object) {
	case hubspot.ObjectCampaigns:
		summary, err = e.runCampaigns(ctx)
	case hubspot.ObjectContactsByCompany:
		summary, err = e.runContactsByCompany(ctx)
	default:
		summary, err = e.runGeneric(ctx)
	}

	switch {
	case err != nil:
		metrics.RunsCompleted.WithLabelValues(e.cfg.Object, "error").Inc()
		return nil, err
	case summary.Skipped:
		metrics.RunsCompleted.WithLabelValues(e.cfg.Object, "skipped").Inc()
	default:
		metrics.RunsCompleted.WithLabelValues(e.cfg.Object, "success").Inc()
	}

	summary.RunID = e.runID
	summary.Object = e.cfg.Object
	summary.Blobs = e.blobs
	log.Info("extraction run complete",
		zap.Bool("skipped", summary.Skipped),
		zap.Int("pages", summary.Pages),
		zap.Int("records", summary.Records),
		zap.Int("blobs", e.blobs))
	return summary, nil
}

// runGeneric covers every object whose endpoint is walked exactly once.
func (e *Extractor) runGeneric(ctx context.Context) (*Summary, error) {
	endpoint, err := e.resolver.Resolve(hubspot.ObjectType(e.cfg.Object), hubspot.PathParams{})
	if err != nil {
		return nil, err
	}

	start, err := e.resumeCursor(ctx)
	if err != nil {
		return nil, err
	}

	pag := e.newPaginator(e.cfg.FlushEvery)
	result, err := pag.Run(ctx, hubspot.Request{
		Endpoint: endpoint,
		Payload:  e.cfg.Payload,
		Start:    start,
	}, e.flusher(ctx))
	if err != nil {
		return nil, err
	}
	if result.Empty {
		e.signaler.Skip(ctx, "upstream returned no data")
		return &Summary{Skipped: true}, nil
	}

	if err := e.writeBatch(ctx, result.Final, 0, true); err != nil {
		return nil, err
	}
	return &Summary{Pages: result.Pages, Records: result.Records, Flushes: result.Flushes}, nil
}

// runCampaigns fans out: one walk over the campaign listing, then one detail
// fetch per campaign id. Details are buffered and flushed at the same cadence
// as pages elsewhere.
func (e *Extractor) runCampaigns(ctx context.Context) (*Summary, error) {
	listing := e.newPaginator(math.MaxInt)
	listResult, err := listing.Run(ctx, hubspot.Request{
		Endpoint: hubspot.CampaignListEndpoint,
		Payload:  e.cfg.Payload,
	}, e.flusher(ctx))
	if err != nil {
		return nil, err
	}
	if listResult.Empty || len(listResult.Final[normalize.CoreGroup]) == 0 {
		e.signaler.Skip(ctx, "no campaigns upstream")
		return &Summary{Skipped: true}, nil
	}

	summary := &Summary{Pages: listResult.Pages}
	var buffer []normalize.RawRecord

	for _, stub := range listResult.Final[normalize.CoreGroup] {
		id, ok := stub["id"]
		if !ok {
			logger.WithContext(ctx).Warn("campaign listing record missing id")
			continue
		}

		endpoint, err := e.resolver.Resolve(hubspot.ObjectCampaigns,
			hubspot.PathParams{CampaignID: fmt.Sprintf("%v", id)})
		if err != nil {
			return nil, err
		}

		detail, err := e.fetchDetail(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		summary.Pages++
		if detail == nil {
			continue
		}
		buffer = append(buffer, detail)
		summary.Records++

		if len(buffer)%e.cfg.FlushEvery == 0 {
			summary.Flushes++
			e.flushSeq++
			if err := e.writeBatch(ctx, e.norm.Normalize(buffer), e.flushSeq, false); err != nil {
				return nil, err
			}
			buffer = nil
		}
	}

	if err := e.writeBatch(ctx, e.norm.Normalize(buffer), 0, true); err != nil {
		return nil, err
	}
	return summary, nil
}

// runContactsByCompany fans out: one walk over the paged company listing,
// then one membership walk per company. An empty company listing skips the
// run entirely so nothing downstream consumes a phantom blob.
func (e *Extractor) runContactsByCompany(ctx context.Context) (*Summary, error) {
	companiesEndpoint, err := e.resolver.Resolve(hubspot.ObjectCompanies, hubspot.PathParams{})
	if err != nil {
		return nil, err
	}

	listing := e.newPaginator(math.MaxInt)
	listResult, err := listing.Run(ctx, hubspot.Request{
		Endpoint: companiesEndpoint,
		Payload:  e.cfg.Payload,
	}, e.flusher(ctx))
	if err != nil {
		return nil, err
	}

	companies := listResult.Final[normalize.CoreGroup]
	if listResult.Empty || len(companies) == 0 {
		e.signaler.Skip(ctx, "no companies upstream")
		return &Summary{Skipped: true}, nil
	}

	summary := &Summary{Pages: listResult.Pages}
	aggregate := normalize.Batch{}

	for _, company := range companies {
		id, ok := company["companyId"]
		if !ok {
			logger.WithContext(ctx).Warn("company record missing companyId")
			continue
		}
		companyID := fmt.Sprintf("%v", id)

		endpoint, err := e.resolver.Resolve(hubspot.ObjectContactsByCompany,
			hubspot.PathParams{CompanyID: companyID})
		if err != nil {
			return nil, err
		}

		walk := e.newPaginator(e.cfg.FlushEvery)
		result, err := walk.Run(ctx, hubspot.Request{
			Endpoint:  endpoint,
			Payload:   e.cfg.Payload,
			CompanyID: companyID,
		}, e.flusher(ctx))
		if err != nil {
			return nil, err
		}
		if result.Empty {
			continue
		}

		summary.Pages += result.Pages
		summary.Records += result.Records
		summary.Flushes += result.Flushes
		mergeBatch(aggregate, result.Final)
	}

	if err := e.writeBatch(ctx, aggregate, 0, true); err != nil {
		return nil, err
	}
	return summary, nil
}

// fetchDetail pulls one single-entity page under the retry policy.
func (e *Extractor) fetchDetail(ctx context.Context, endpoint string) (normalize.RawRecord, error) {
	var body interface{}
	err := e.retry.Execute(ctx, func() error {
		var callErr error
		body, callErr = e.caller.Call(ctx, endpoint, e.cfg.Payload)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	record, _ := body.(map[string]interface{})
	return record, nil
}

// resumeCursor loads the checkpointed cursor when the run asks to resume.
func (e *Extractor) resumeCursor(ctx context.Context) (*hubspot.Cursor, error) {
	if !e.cfg.Reliability.Resume {
		return nil, nil
	}
	raw, ok, err := e.store.Get(ctx, e.runID+"_vidOffset")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to read checkpoint")
	}
	if !ok {
		return nil, nil
	}
	cursor, valid := hubspot.ParseCursor(raw)
	if !valid {
		return nil, errors.Newf(errors.ErrorTypeData, "corrupt checkpoint value: %q", raw)
	}
	return &cursor, nil
}

func (e *Extractor) newPaginator(flushEvery int) *hubspot.Paginator {
	return hubspot.NewPaginator(e.caller, e.norm, e.store, e.retry, hubspot.PaginatorConfig{
		Object:     hubspot.ObjectType(e.cfg.Object),
		RunID:      e.runID,
		PageSize:   e.cfg.PageSize,
		FlushEvery: flushEvery,
	})
}

// flusher numbers intermediate batches with the run-level sequence, ignoring
// the per-walk ordinal.
func (e *Extractor) flusher(ctx context.Context) hubspot.FlushFunc {
	return func(batch normalize.Batch, _ int) error {
		e.flushSeq++
		return e.writeBatch(ctx, batch, e.flushSeq, false)
	}
}

// writeBatch writes one blob per non-empty group. Final blobs carry the
// "_final" marker; intermediate blobs carry the flush sequence number.
func (e *Extractor) writeBatch(ctx context.Context, batch normalize.Batch, seq int, final bool) error {
	for _, group := range batch.Groups() {
		records := batch[group]
		if len(records) == 0 {
			continue
		}
		key := e.blobKey(group, seq, final)
		if err := e.writer.Write(ctx, records, key); err != nil {
			return err
		}
		e.blobs++
		metrics.BlobsWritten.WithLabelValues(e.cfg.Object, group).Inc()
	}
	return nil
}

// blobKey derives the blob name: the configured base, the snake-cased group,
// and either the flush sequence or the final marker.
func (e *Extractor) blobKey(group string, seq int, final bool) string {
	name := normalize.Constrict(group)
	if final {
		return fmt.Sprintf("%s_%s_final%s", e.cfg.Output.KeyBase, name, e.writer.Extension())
	}
	return fmt.Sprintf("%s_%s_%d%s", e.cfg.Output.KeyBase, name, seq, e.writer.Extension())
}

func mergeBatch(dst, src normalize.Batch) {
	for group, records := range src {
		dst[group] = append(dst[group], records...)
	}
}
