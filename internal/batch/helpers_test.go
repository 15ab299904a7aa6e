package batch

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"batchfetch/internal/logging"
	"batchfetch/internal/model"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const (
	answersPath = "Assessment.answers"
	tagsPath    = "Answer.tags"
)

func demoRegistry(t *testing.T) *model.Registry {
	t.Helper()
	r, err := model.NewRegistry(
		model.EntityType{
			Name:        "Assessment",
			Columns:     []string{"name"},
			Collections: []model.Collection{{Name: "answers", Target: "Answer"}},
		},
		model.EntityType{
			Name:        "Answer",
			Columns:     []string{"text"},
			Collections: []model.Collection{{Name: "tags", ValueColumns: []string{"tag"}}},
		},
	)
	require.NoError(t, err)
	return r
}

// fixture describes the expected data: assessment id -> answer id -> tags.
type fixture map[int64]map[int64][]string

// buildStore seeds a fake store with parents assessments, each owning the listed number of
// answers, each answer owning tagsPerAnswer tags. Collection rows are shuffled with seed so
// they never arrive grouped by owner.
func buildStore(parents []int64, answersPer func(parent int64) int, tagsPerAnswer int, seed uint64) (*fakeStore, fixture) {
	store := newFakeStore()
	expected := make(fixture)
	var nextAnswer int64 = 1

	for _, p := range parents {
		store.putEntity("Assessment", p, map[string]any{"id": p, "name": fmt.Sprintf("assessment %d", p)})
		expected[p] = make(map[int64][]string)
		for j := 0; j < answersPer(p); j++ {
			a := nextAnswer
			nextAnswer++
			values := map[string]any{"id": a, "text": fmt.Sprintf("answer %d", a)}
			store.rows[answersPath] = append(store.rows[answersPath], ResultRow{
				Owner:  mustKey(p),
				Key:    mustKey(a),
				ID:     a,
				Values: values,
			})
			tags := make([]string, 0, tagsPerAnswer)
			for k := 0; k < tagsPerAnswer; k++ {
				tag := fmt.Sprintf("tag-%d-%d", a, k)
				tags = append(tags, tag)
				store.rows[tagsPath] = append(store.rows[tagsPath], ResultRow{
					Owner:  mustKey(a),
					Values: map[string]any{"tag": tag},
				})
			}
			expected[p][a] = tags
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for _, path := range []string{answersPath, tagsPath} {
		rows := store.rows[path]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
	}
	return store, expected
}

func mustKey(v any) Key {
	k, ok := KeyOf(v)
	if !ok {
		panic(fmt.Sprintf("no key for %v", v))
	}
	return k
}

type fakeStore struct {
	mu          sync.Mutex
	entities    map[string]map[Key]map[string]any
	extraRows   map[string][]map[string]any
	rows        map[string][]ResultRow
	entityCalls int
	calls       map[string]int
	owners      map[string][]int
	failures    map[string]error
	unfiltered  bool
	gate        chan struct{}
	entered     chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:  make(map[string]map[Key]map[string]any),
		extraRows: make(map[string][]map[string]any),
		rows:      make(map[string][]ResultRow),
		calls:     make(map[string]int),
		owners:    make(map[string][]int),
		failures:  make(map[string]error),
	}
}

func (f *fakeStore) putEntity(kind string, id any, values map[string]any) {
	if f.entities[kind] == nil {
		f.entities[kind] = make(map[Key]map[string]any)
	}
	f.entities[kind][mustKey(id)] = values
}

func (f *fakeStore) LoadEntities(ctx context.Context, t *model.EntityType, ids []any) ([]map[string]any, error) {
	f.mu.Lock()
	f.entityCalls++
	table := f.entities[t.Name]
	extra := f.extraRows[t.Name]
	f.mu.Unlock()

	var out []map[string]any
	for _, id := range ids {
		if row, ok := table[mustKey(id)]; ok {
			out = append(out, maps.Clone(row))
		}
	}
	return append(out, extra...), nil
}

func (f *fakeStore) LoadCollection(ctx context.Context, c *model.Collection, ownerIDs []any) ([]ResultRow, error) {
	path := c.Path()
	f.mu.Lock()
	f.calls[path]++
	f.owners[path] = append(f.owners[path], len(ownerIDs))
	err := f.failures[path]
	delete(f.failures, path)
	rows := f.rows[path]
	gate, entered, unfiltered := f.gate, f.entered, f.unfiltered
	f.mu.Unlock()

	if entered != nil {
		entered <- path
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if unfiltered {
		return append([]ResultRow(nil), rows...), nil
	}

	owners := make(map[Key]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[mustKey(id)] = struct{}{}
	}
	var out []ResultRow
	for _, row := range rows {
		if _, ok := owners[row.Owner]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeStore) ownerCounts(path string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.owners[path]...)
}

func (f *fakeStore) entityCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entityCalls
}

func newTestSession(t *testing.T, store Store, opts Options) *Session {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	s := NewSession(demoRegistry(t), store, opts)
	t.Cleanup(s.Close)
	return s
}

func int64IDs(ids ...int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func seqIDs(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

// collect walks assessments -> answers -> tags in the order given by rng and returns the
// resolved data keyed by id. Tags are sorted since the model imposes no order on them.
func collect(t *testing.T, ctx context.Context, assessments []*Entity, rng *rand.Rand) fixture {
	t.Helper()
	got := make(fixture)
	order := append([]*Entity(nil), assessments...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, assessment := range order {
		answers, err := assessment.Collection("answers").Entities(ctx)
		require.NoError(t, err)
		rng.Shuffle(len(answers), func(i, j int) { answers[i], answers[j] = answers[j], answers[i] })

		byAnswer := make(map[int64][]string, len(answers))
		for _, answer := range answers {
			tags := []string{}
			err := answer.Collection("tags").Each(ctx, func(tag *Entity) error {
				tags = append(tags, tag.Value("tag").(string))
				return nil
			})
			require.NoError(t, err)
			sort.Strings(tags)
			byAnswer[answer.ID().(int64)] = tags
		}
		got[assessment.ID().(int64)] = byAnswer
	}
	return got
}

func installBatchSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)

	oldProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(oldProvider)
	})
	return recorder
}
