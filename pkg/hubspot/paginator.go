package hubspot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hublift/hublift/pkg/checkpoint"
	"github.com/hublift/hublift/pkg/clients"
	"github.com/hublift/hublift/pkg/errors"
	"github.com/hublift/hublift/pkg/logger"
	"github.com/hublift/hublift/pkg/metrics"
	"github.com/hublift/hublift/pkg/normalize"
)

// Cursor is an opaque pagination position: the query parameter the upstream
// expects next plus its value. It survives checkpointing as "param=value".
type Cursor struct {
	Param string
	Value string
}

// Encode serializes the cursor for checkpoint storage.
func (c Cursor) Encode() string {
	return c.Param + "=" + c.Value
}

// ParseCursor decodes a checkpointed cursor string.
func ParseCursor(raw string) (Cursor, bool) {
	idx := strings.IndexByte(raw, '=')
	if idx <= 0 {
		return Cursor{}, false
	}
	return Cursor{Param: raw[:idx], Value: raw[idx+1:]}, true
}

// FlushFunc receives one normalized intermediate batch. flush is 1-based and
// strictly increasing within a run.
type FlushFunc func(batch normalize.Batch, flush int) error

// PaginatorConfig tunes one pagination walk.
type PaginatorConfig struct {
	Object     ObjectType
	RunID      string
	PageSize   int // records requested per page
	FlushEvery int // pages buffered between flushes
}

// Request describes one endpoint walk.
type Request struct {
	Endpoint string
	Payload  map[string]string // merged over base params, payload wins
	Start    *Cursor           // resume position, nil starts from the beginning
	// CompanyID is injected as the foreign key into synthesized
	// contact-membership records.
	CompanyID string
}

// Result summarizes one completed walk. Final holds the normalized remainder
// that was never flushed; Empty means the upstream returned nothing and no
// output should be written at all.
type Result struct {
	Final   normalize.Batch
	Empty   bool
	Pages   int
	Flushes int
	Records int
}

// Paginator walks one endpoint to exhaustion: it follows continuation flags
// and cursor feedback, buffers raw records, and every FlushEvery pages hands
// a normalized batch to the flush callback and checkpoints the cursor.
type Paginator struct {
	caller Caller
	norm   *normalize.Normalizer
	store  checkpoint.Store
	retry  *clients.RetryPolicy
	cfg    PaginatorConfig
}

// NewPaginator wires a paginator. Zero PageSize and FlushEvery default to 100.
func NewPaginator(caller Caller, norm *normalize.Normalizer, store checkpoint.Store,
	retry *clients.RetryPolicy, cfg PaginatorConfig) *Paginator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 100
	}
	if retry == nil {
		retry = clients.DefaultRetryPolicy()
	}
	return &Paginator{caller: caller, norm: norm, store: store, retry: retry, cfg: cfg}
}

// checkpointKey scopes the cursor to this run so concurrent runs of the same
// object never read each other's position.
func (p *Paginator) checkpointKey() string {
	return p.cfg.RunID + "_vidOffset"
}

// Run walks the endpoint until the upstream stops signalling more pages.
func (p *Paginator) Run(ctx context.Context, req Request, flush FlushFunc) (*Result, error) {
	log := logger.WithContext(ctx).With(
		zap.String("object", string(p.cfg.Object)),
		zap.String("endpoint", req.Endpoint),
	)

	params := map[string]string{
		"count":     strconv.Itoa(p.cfg.PageSize),
		"vidOffset": "0",
	}
	for k, v := range req.Payload {
		params[k] = v
	}
	if req.Start != nil {
		params[req.Start.Param] = req.Start.Value
		log.Info("resuming pagination from checkpoint",
			zap.String("cursor_param", req.Start.Param),
			zap.String("cursor_value", req.Start.Value))
	}

	body, err := p.fetch(ctx, req.Endpoint, params)
	if err != nil {
		return nil, err
	}
	if isEmptyBody(body) {
		log.Info("upstream returned no data")
		return &Result{Empty: true}, nil
	}

	result := &Result{Pages: 1}
	buffer := p.extract(body, req)
	result.Records = len(buffer)
	metrics.PagesFetched.WithLabelValues(string(p.cfg.Object)).Inc()
	metrics.RecordsExtracted.WithLabelValues(string(p.cfg.Object)).Add(float64(len(buffer)))

	var cursor Cursor
	more := continuationFlag(body)

	for more {
		if next, ok := nextCursor(body); ok {
			cursor = next
			params[cursor.Param] = cursor.Value
		}

		body, err = p.fetch(ctx, req.Endpoint, params)
		if err != nil {
			return nil, err
		}

		more = continuationFlag(body)
		records := p.extract(body, req)
		buffer = append(buffer, records...)

		result.Pages++
		result.Records += len(records)
		metrics.PagesFetched.WithLabelValues(string(p.cfg.Object)).Inc()
		metrics.RecordsExtracted.WithLabelValues(string(p.cfg.Object)).Add(float64(len(records)))

		if result.Pages%p.cfg.FlushEvery == 0 {
			result.Flushes++
			batch := p.norm.Normalize(buffer)
			if err := flush(batch, result.Flushes); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeStorage, "intermediate flush failed")
			}
			buffer = nil
			metrics.FlushesTotal.WithLabelValues(string(p.cfg.Object)).Inc()

			// Checkpoint the boundary page's own cursor feedback: the
			// flushed blob includes this page, so a resume must start on
			// the page after it, not re-request it.
			mark := cursor
			if next, ok := nextCursor(body); ok {
				mark = next
			}
			if mark.Value != "" {
				if err := p.store.Set(ctx, p.checkpointKey(), mark.Encode()); err != nil {
					return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to checkpoint cursor")
				}
			}
			log.Info("flushed intermediate batch",
				zap.Int("flush", result.Flushes),
				zap.Int("pages", result.Pages))
		}
	}

	result.Final = p.norm.Normalize(buffer)
	log.Info("pagination complete",
		zap.Int("pages", result.Pages),
		zap.Int("records", result.Records),
		zap.Int("flushes", result.Flushes))
	return result, nil
}

// fetch performs one page request under the retry policy. Retryable failures
// back off and retry; exhaustion or a non-retryable error aborts the run.
func (p *Paginator) fetch(ctx context.Context, endpoint string, params map[string]string) (interface{}, error) {
	var body interface{}
	attempts := 0
	err := p.retry.Execute(ctx, func() error {
		attempts++
		var callErr error
		body, callErr = p.caller.Call(ctx, endpoint, params)
		return callErr
	})
	if attempts > 1 {
		metrics.RequestRetries.WithLabelValues(string(p.cfg.Object)).Add(float64(attempts - 1))
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// extract pulls raw records out of a page body. The shape varies by object:
// some endpoints return a bare list, some wrap the list under a known key,
// and single-entity fetches return the record itself.
func (p *Paginator) extract(body interface{}, req Request) []normalize.RawRecord {
	switch p.cfg.Object {
	case ObjectDealPipelines, ObjectSocial, ObjectOwners:
		list, _ := body.([]interface{})
		return recordsOf(list)

	case ObjectEngagements:
		return recordsOf(listField(body, "results"))

	case ObjectContactsByCompany:
		if strings.HasSuffix(req.Endpoint, "/vids") {
			// Membership pages carry bare contact ids; synthesize the
			// join records here.
			vids := listField(body, "vids")
			records := make([]normalize.RawRecord, 0, len(vids))
			for _, vid := range vids {
				records = append(records, normalize.RawRecord{
					"vid":        vid,
					"company_id": req.CompanyID,
				})
			}
			return records
		}
		return recordsOf(listField(body, "companies"))

	case ObjectCampaigns:
		if req.Endpoint == CampaignListEndpoint {
			return recordsOf(listField(body, "campaigns"))
		}
		// Detail fetch returns the campaign itself.
		if m, ok := body.(map[string]interface{}); ok {
			return []normalize.RawRecord{m}
		}
		return nil

	default:
		return recordsOf(listField(body, string(p.cfg.Object)))
	}
}

// continuationFlag reads the page's more-data indicator. A page with neither
// spelling, or a body that is not an object at all, ends the walk.
func continuationFlag(body interface{}) bool {
	m, ok := body.(map[string]interface{})
	if !ok {
		return false
	}
	if v, ok := m["hasMore"]; ok {
		flag, _ := v.(bool)
		return flag
	}
	if v, ok := m["has-more"]; ok {
		flag, _ := v.(bool)
		return flag
	}
	return false
}

// nextCursor reads the cursor feedback from a page body. The hyphenated
// spelling feeds the camelCase request parameter.
func nextCursor(body interface{}) (Cursor, bool) {
	m, ok := body.(map[string]interface{})
	if !ok {
		return Cursor{}, false
	}
	if v, ok := m["vid-offset"]; ok && v != nil {
		return Cursor{Param: "vidOffset", Value: cursorString(v)}, true
	}
	if v, ok := m["offset"]; ok && v != nil {
		return Cursor{Param: "offset", Value: cursorString(v)}, true
	}
	return Cursor{}, false
}

func cursorString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case gojson.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// isEmptyBody mirrors a falsy check over the decoded JSON body.
func isEmptyBody(body interface{}) bool {
	switch t := body.(type) {
	case nil:
		return true
	case map[string]interface{}:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	case string:
		return t == ""
	default:
		return false
	}
}

// listField returns the list stored under key in an object body, or nil when
// the body is not an object or the key is absent or not a list.
func listField(body interface{}, key string) []interface{} {
	m, ok := body.(map[string]interface{})
	if !ok {
		return nil
	}
	list, _ := m[key].([]interface{})
	return list
}

// recordsOf keeps the map-shaped items of a list. Anything else is logged
// and dropped rather than corrupting the batch.
func recordsOf(list []interface{}) []normalize.RawRecord {
	if len(list) == 0 {
		return nil
	}
	records := make([]normalize.RawRecord, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, m)
			continue
		}
		logger.Warn("dropping non-object list item", zap.Any("item", item))
	}
	return records
}
