package sink

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hublift/hublift/pkg/normalize"
)

// memStore collects puts keyed by bucket/key.
type memStore struct {
	objects map[string][]byte
	puts    int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(_ context.Context, content []byte, bucket, key string) error {
	m.puts++
	stored := make([]byte, len(content))
	copy(stored, content)
	m.objects[bucket+"/"+key] = stored
	return nil
}

func TestWriterProducesOneLinePerRecord(t *testing.T) {
	store := newMemStore()
	w := NewWriter(store, "crm-extracts", "deals", false)

	records := []normalize.RawRecord{
		{"dealId": 1},
		{"dealId": 2},
		{"dealId": 3},
	}
	require.NoError(t, w.Write(context.Background(), records, "deals_core_final.json"))

	blob, ok := store.objects["crm-extracts/deals_core_final.json"]
	require.True(t, ok)

	lines := strings.Split(string(blob), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `{"deal_id":1}`, lines[0])
	assert.False(t, strings.HasSuffix(string(blob), "\n"))
}

func TestWriterFlattensAndSnakeCasesKeys(t *testing.T) {
	store := newMemStore()
	w := NewWriter(store, "crm-extracts", "contacts", false)

	records := []normalize.RawRecord{
		{
			"portalId": 62515,
			"properties": map[string]interface{}{
				"firstName": map[string]interface{}{"value": "Ada"},
			},
		},
	}
	require.NoError(t, w.Write(context.Background(), records, "contacts_core_final.json"))

	blob := string(store.objects["crm-extracts/contacts_core_final.json"])
	assert.Contains(t, blob, `"portal_id":62515`)
	assert.Contains(t, blob, `"properties_first_name_value":"Ada"`)
}

func TestWriterSkipsEmptyGroups(t *testing.T) {
	store := newMemStore()
	w := NewWriter(store, "crm-extracts", "lists", false)

	require.NoError(t, w.Write(context.Background(), nil, "lists_filters_final.json"))
	assert.Zero(t, store.puts)
}

func TestWriterOverwriteIsIdempotent(t *testing.T) {
	store := newMemStore()
	w := NewWriter(store, "crm-extracts", "owners", false)

	first := []normalize.RawRecord{{"ownerId": 1}}
	second := []normalize.RawRecord{{"ownerId": 2}}
	require.NoError(t, w.Write(context.Background(), first, "owners_core_final.json"))
	require.NoError(t, w.Write(context.Background(), second, "owners_core_final.json"))

	require.Len(t, store.objects, 1)
	assert.Equal(t, `{"owner_id":2}`, string(store.objects["crm-extracts/owners_core_final.json"]))
}

func TestWriterGzip(t *testing.T) {
	store := newMemStore()
	w := NewWriter(store, "crm-extracts", "forms", true)
	assert.Equal(t, ".json.gz", w.Extension())

	records := []normalize.RawRecord{{"guid": "abc"}, {"guid": "def"}}
	require.NoError(t, w.Write(context.Background(), records, "forms_core_final.json.gz"))

	blob := store.objects["crm-extracts/forms_core_final.json.gz"]
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	require.NoError(t, err)
	decompressed, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(string(decompressed), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"guid":"abc"}`, lines[0])
}
