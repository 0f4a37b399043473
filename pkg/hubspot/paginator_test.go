package hubspot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hublift/hublift/pkg/checkpoint"
	"github.com/hublift/hublift/pkg/clients"
	"github.com/hublift/hublift/pkg/errors"
	"github.com/hublift/hublift/pkg/normalize"
)

// scriptedCaller replays a fixed page sequence and records every request's
// parameters.
type scriptedCaller struct {
	pages []interface{}
	errs  []error
	calls []map[string]string
	idx   int
}

func (s *scriptedCaller) Call(_ context.Context, _ string, params map[string]string) (interface{}, error) {
	seen := make(map[string]string, len(params))
	for k, v := range params {
		seen[k] = v
	}
	s.calls = append(s.calls, seen)

	if s.idx < len(s.errs) && s.errs[s.idx] != nil {
		err := s.errs[s.idx]
		s.idx++
		return nil, err
	}
	if s.idx >= len(s.pages) {
		return nil, nil
	}
	page := s.pages[s.idx]
	s.idx++
	return page, nil
}

func contactsPage(vids []int, more bool, offset interface{}) map[string]interface{} {
	records := make([]interface{}, 0, len(vids))
	for _, vid := range vids {
		records = append(records, map[string]interface{}{"vid": vid})
	}
	page := map[string]interface{}{
		"contacts": records,
		"has-more": more,
	}
	if offset != nil {
		page["vid-offset"] = offset
	}
	return page
}

func newTestPaginator(caller Caller, object ObjectType, store checkpoint.Store, flushEvery int) *Paginator {
	retry := clients.NewRetryPolicy(3, time.Millisecond)
	return NewPaginator(caller, normalize.New(string(object)), store, retry, PaginatorConfig{
		Object:     object,
		RunID:      "run-1",
		FlushEvery: flushEvery,
	})
}

func TestPaginatorWalksUntilContinuationStops(t *testing.T) {
	caller := &scriptedCaller{pages: []interface{}{
		contactsPage([]int{1, 2}, true, "100"),
		contactsPage([]int{3, 4}, true, "200"),
		contactsPage([]int{5}, false, nil),
	}}
	p := newTestPaginator(caller, ObjectContacts, checkpoint.NewMemoryStore(), 100)

	result, err := p.Run(context.Background(), Request{Endpoint: "contacts/v1/lists/all/contacts/all"}, noFlush(t))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 5, result.Records)
	assert.False(t, result.Empty)
	assert.Len(t, result.Final[normalize.CoreGroup], 5)

	// Cursor feedback from page N feeds the request for page N+1.
	require.Len(t, caller.calls, 3)
	assert.Equal(t, "0", caller.calls[0]["vidOffset"])
	assert.Equal(t, "100", caller.calls[1]["vidOffset"])
	assert.Equal(t, "200", caller.calls[2]["vidOffset"])
}

func TestPaginatorFlushCadence(t *testing.T) {
	// 250 pages: flushes after pages 100 and 200, remainder in Final.
	var pages []interface{}
	for i := 0; i < 250; i++ {
		pages = append(pages, contactsPage([]int{i}, i < 249, fmt.Sprintf("%d", i+1)))
	}
	caller := &scriptedCaller{pages: pages}
	store := checkpoint.NewMemoryStore()
	p := newTestPaginator(caller, ObjectContacts, store, 100)

	var flushSizes []int
	flush := func(batch normalize.Batch, n int) error {
		flushSizes = append(flushSizes, len(batch[normalize.CoreGroup]))
		assert.Equal(t, len(flushSizes), n)
		return nil
	}

	result, err := p.Run(context.Background(), Request{Endpoint: "contacts/v1/lists/all/contacts/all"}, flush)
	require.NoError(t, err)

	assert.Equal(t, 250, result.Pages)
	assert.Equal(t, 2, result.Flushes)
	assert.Equal(t, []int{100, 100}, flushSizes)
	assert.Len(t, result.Final[normalize.CoreGroup], 50)

	// Cursor checkpoint is run-scoped and holds the second boundary page's
	// own feedback, so resuming starts at page 201.
	value, ok, err := store.Get(context.Background(), "run-1_vidOffset")
	require.NoError(t, err)
	require.True(t, ok)
	cursor, parsed := ParseCursor(value)
	require.True(t, parsed)
	assert.Equal(t, "vidOffset", cursor.Param)
	assert.Equal(t, "200", cursor.Value)
}

func TestPaginatorCheckpointPointsPastFlushedPages(t *testing.T) {
	// The flush at page 2 durably writes vids 1 and 2. The checkpoint must
	// hold page 2's advertised next offset ("3"), not the cursor that
	// requested page 2 ("2"): resuming from the latter would re-fetch the
	// page and duplicate its records.
	caller := &scriptedCaller{pages: []interface{}{
		contactsPage([]int{1}, true, "2"),
		contactsPage([]int{2}, true, "3"),
		contactsPage([]int{3}, false, nil),
	}}
	store := checkpoint.NewMemoryStore()
	p := newTestPaginator(caller, ObjectContacts, store, 2)

	var flushedVids []interface{}
	flush := func(batch normalize.Batch, _ int) error {
		for _, record := range batch[normalize.CoreGroup] {
			flushedVids = append(flushedVids, record["vid"])
		}
		return nil
	}

	result, err := p.Run(context.Background(), Request{Endpoint: "contacts/v1/lists/all/contacts/all"}, flush)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{1, 2}, flushedVids)
	assert.Len(t, result.Final[normalize.CoreGroup], 1)

	value, ok, err := store.Get(context.Background(), "run-1_vidOffset")
	require.NoError(t, err)
	require.True(t, ok)
	cursor, parsed := ParseCursor(value)
	require.True(t, parsed)
	assert.Equal(t, "vidOffset", cursor.Param)
	assert.Equal(t, "3", cursor.Value)
}

func TestPaginatorEmptyFirstPage(t *testing.T) {
	caller := &scriptedCaller{pages: []interface{}{map[string]interface{}{}}}
	p := newTestPaginator(caller, ObjectContacts, checkpoint.NewMemoryStore(), 100)

	result, err := p.Run(context.Background(), Request{Endpoint: "contacts/v1/lists/all/contacts/all"}, noFlush(t))
	require.NoError(t, err)
	assert.True(t, result.Empty)
	assert.Nil(t, result.Final)
}

func TestPaginatorSinglePageWithoutContinuationFlag(t *testing.T) {
	// A body with no more-data indicator degrades to a single page.
	caller := &scriptedCaller{pages: []interface{}{
		map[string]interface{}{
			"contacts": []interface{}{map[string]interface{}{"vid": 7}},
		},
	}}
	p := newTestPaginator(caller, ObjectContacts, checkpoint.NewMemoryStore(), 100)

	result, err := p.Run(context.Background(), Request{Endpoint: "contacts/v1/lists/all/contacts/all"}, noFlush(t))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, result.Final[normalize.CoreGroup], 1)
}

func TestPaginatorBareListBody(t *testing.T) {
	caller := &scriptedCaller{pages: []interface{}{
		[]interface{}{
			map[string]interface{}{"ownerId": 1},
			map[string]interface{}{"ownerId": 2},
		},
	}}
	p := newTestPaginator(caller, ObjectOwners, checkpoint.NewMemoryStore(), 100)

	result, err := p.Run(context.Background(), Request{Endpoint: "owners/v2/owners"}, noFlush(t))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, result.Final[normalize.CoreGroup], 2)
}

func TestPaginatorSynthesizesCompanyMemberships(t *testing.T) {
	caller := &scriptedCaller{pages: []interface{}{
		map[string]interface{}{
			"vids":     []interface{}{101, 102},
			"has-more": false,
		},
	}}
	p := newTestPaginator(caller, ObjectContactsByCompany, checkpoint.NewMemoryStore(), 100)

	result, err := p.Run(context.Background(), Request{
		Endpoint:  "companies/v2/companies/55/vids",
		CompanyID: "55",
	}, noFlush(t))
	require.NoError(t, err)

	core := result.Final[normalize.CoreGroup]
	require.Len(t, core, 2)
	assert.Equal(t, 101, core[0]["vid"])
	assert.Equal(t, "55", core[0]["company_id"])
}

func TestPaginatorPayloadOverridesBaseParams(t *testing.T) {
	caller := &scriptedCaller{pages: []interface{}{
		contactsPage([]int{1}, false, nil),
	}}
	p := newTestPaginator(caller, ObjectContacts, checkpoint.NewMemoryStore(), 100)

	_, err := p.Run(context.Background(), Request{
		Endpoint: "contacts/v1/lists/all/contacts/all",
		Payload:  map[string]string{"count": "50", "property": "email"},
	}, noFlush(t))
	require.NoError(t, err)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, "50", caller.calls[0]["count"])
	assert.Equal(t, "email", caller.calls[0]["property"])
}

func TestPaginatorResumesFromStartCursor(t *testing.T) {
	caller := &scriptedCaller{pages: []interface{}{
		contactsPage([]int{9}, false, nil),
	}}
	p := newTestPaginator(caller, ObjectContacts, checkpoint.NewMemoryStore(), 100)

	_, err := p.Run(context.Background(), Request{
		Endpoint: "contacts/v1/lists/all/contacts/all",
		Start:    &Cursor{Param: "vidOffset", Value: "4242"},
	}, noFlush(t))
	require.NoError(t, err)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, "4242", caller.calls[0]["vidOffset"])
}

func TestPaginatorRetriesTransientFailures(t *testing.T) {
	caller := &scriptedCaller{
		errs: []error{
			errors.New(errors.ErrorTypeConnection, "upstream returned status 503"),
			nil,
		},
		pages: []interface{}{
			nil, // consumed by the failed attempt
			contactsPage([]int{1}, false, nil),
		},
	}
	p := newTestPaginator(caller, ObjectContacts, checkpoint.NewMemoryStore(), 100)

	result, err := p.Run(context.Background(), Request{Endpoint: "contacts/v1/lists/all/contacts/all"}, noFlush(t))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.Len(t, caller.calls, 2)
}

func TestPaginatorAbortsWhenRetriesExhaust(t *testing.T) {
	transient := errors.New(errors.ErrorTypeConnection, "upstream returned status 503")
	caller := &scriptedCaller{errs: []error{transient, transient, transient}}
	p := newTestPaginator(caller, ObjectContacts, checkpoint.NewMemoryStore(), 100)

	_, err := p.Run(context.Background(), Request{Endpoint: "contacts/v1/lists/all/contacts/all"}, noFlush(t))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{Param: "offset", Value: "3481"}
	parsed, ok := ParseCursor(c.Encode())
	require.True(t, ok)
	assert.Equal(t, c, parsed)

	_, ok = ParseCursor("garbage")
	assert.False(t, ok)
}

func noFlush(t *testing.T) FlushFunc {
	return func(normalize.Batch, int) error {
		t.Fatal("unexpected intermediate flush")
		return nil
	}
}
