package scholarquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/poiesic/scholarquery/ai"
	"github.com/poiesic/scholarquery/ai/mock"
	"github.com/poiesic/scholarquery/config"
	"github.com/poiesic/scholarquery/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 32

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.InMemory = true
	cfg.AI.EmbeddingDim = testDim
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *mock.MockProvider) {
	t.Helper()
	embedder := mock.NewMockEmbedder()
	embedder.Dim = testDim
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockGenerator())

	engine, err := NewEngine(testConfig(), WithAIProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine, provider.(*mock.MockProvider)
}

func testCorpus() []*core.Document {
	return []*core.Document{
		{Id: "cats-1", Text: "cats are small felines with sharp retractable claws"},
		{Id: "cats-2", Text: "felines hunt at night and groom their fur daily"},
		{Id: "stocks-1", Text: "stock markets rallied on strong earnings reports"},
		{Id: "stocks-2", Text: "bond yields fell as markets priced in rate cuts"},
	}
}

func TestEngine_IngestAndQuery(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, testCorpus()...)
	require.NoError(t, err)
	assert.Equal(t, 4, engine.DocumentCount())

	// A query matching a document's exact text must rank it first.
	result, err := engine.Query(ctx, &core.Query{
		Text: "stock markets rallied on strong earnings reports",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Retrieval.Hits)
	assert.Equal(t, "stocks-1", result.Retrieval.Hits[0].Document.Id)
	assert.InDelta(t, 1.0, float64(result.Retrieval.Hits[0].Score), 1e-4)
	assert.Nil(t, result.Answer)
}

func TestEngine_QueryDefaultsAndClamping(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, testCorpus()...)
	require.NoError(t, err)

	q := &core.Query{Text: "felines"}
	_, err = engine.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, engine.cfg.Retrieval.DefaultTopK, q.TopK)

	q = &core.Query{Text: "felines", TopK: engine.cfg.Retrieval.MaxTopK + 50}
	_, err = engine.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, engine.cfg.Retrieval.MaxTopK, q.TopK)

	_, err = engine.Query(ctx, nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestEngine_ResultCaching(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, testCorpus()...)
	require.NoError(t, err)

	q := &core.Query{Text: "felines with claws", TopK: 2}
	first, err := engine.Query(ctx, q)
	require.NoError(t, err)
	second, err := engine.Query(ctx, q)
	require.NoError(t, err)
	assert.Same(t, first, second, "identical queries should hit the result cache")

	// Any corpus mutation drops cached results.
	_, err = engine.Ingest(ctx, &core.Document{Id: "dogs-1", Text: "dogs bark at strangers"})
	require.NoError(t, err)
	third, err := engine.Query(ctx, q)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestEngine_ReclusterAndTopicFilter(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, testCorpus()...)
	require.NoError(t, err)

	require.Nil(t, engine.Topics())

	clustering, err := engine.Recluster(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), clustering.Version)
	assert.Len(t, clustering.Clusters, 2)
	require.NotNil(t, engine.Topics())
	assert.Equal(t, clustering.Version, engine.Topics().Version)

	// Filtering on a topic id no cluster uses yields an empty candidate set.
	result, err := engine.Query(ctx, &core.Query{
		Text:        "felines",
		TopK:        4,
		TopicFilter: []int32{99},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Retrieval.Hits)

	// Filtering on the topic of a known document keeps it reachable.
	var catTopic int32 = core.TopicNone
	for _, hit := range mustQuery(t, engine, "cats are small felines with sharp retractable claws", 1).Retrieval.Hits {
		catTopic = hit.Document.TopicId
	}
	require.NotEqual(t, core.TopicNone, catTopic)

	result, err = engine.Query(ctx, &core.Query{
		Text:        "cats are small felines with sharp retractable claws",
		TopK:        4,
		TopicFilter: []int32{catTopic},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Retrieval.Hits)
	assert.Equal(t, "cats-1", result.Retrieval.Hits[0].Document.Id)
}

func mustQuery(t *testing.T, engine *Engine, text string, topK int) *QueryResult {
	t.Helper()
	result, err := engine.Query(context.Background(), &core.Query{Text: text, TopK: topK})
	require.NoError(t, err)
	return result
}

func TestEngine_QueryWithRAG(t *testing.T) {
	engine, provider := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, testCorpus()...)
	require.NoError(t, err)

	result, err := engine.Query(ctx, &core.Query{
		Text:   "how do felines hunt",
		TopK:   2,
		UseRAG: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Answer)
	assert.False(t, result.Answer.Unavailable)
	require.NotEmpty(t, result.Answer.Citations)
	assert.Equal(t, result.Retrieval.Hits[0].Document.Id, result.Answer.Citations[0].DocId)
	assert.Equal(t, 1, provider.GetMockGenerator().CallCount())
}

func TestEngine_DegradedAnswerNotCached(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dim = testDim
	generator := mock.NewMockGenerator()
	generator.GenerateFunc = func(ctx context.Context, prompt string, params ai.GenerationParams) (*ai.Generation, error) {
		return nil, errors.New("generation host down")
	}
	provider := mock.NewMockProviderWithServices(embedder, generator)

	engine, err := NewEngine(testConfig(), WithAIProvider(provider))
	require.NoError(t, err)
	defer engine.Close()
	ctx := context.Background()

	_, err = engine.Ingest(ctx, testCorpus()...)
	require.NoError(t, err)

	q := &core.Query{Text: "felines", TopK: 2, UseRAG: true}
	first, err := engine.Query(ctx, q)
	require.NoError(t, err)
	require.NotNil(t, first.Answer)
	assert.True(t, first.Answer.Unavailable)

	// An unavailable answer is served but must not be pinned in the cache.
	second, err := engine.Query(ctx, q)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestEngine_RestartRestoresState(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.InMemory = false
	cfg.Storage.Path = filepath.Join(t.TempDir(), "engine")

	embedder := mock.NewMockEmbedder()
	embedder.Dim = testDim
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockGenerator())

	engine, err := NewEngine(cfg, WithAIProvider(provider))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = engine.Ingest(ctx, testCorpus()...)
	require.NoError(t, err)
	_, err = engine.Recluster(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	reopened, err := NewEngine(cfg, WithAIProvider(provider))
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 4, reopened.DocumentCount())
	require.NotNil(t, reopened.Topics())
	assert.Equal(t, uint64(1), reopened.Topics().Version)

	result, err := reopened.Query(ctx, &core.Query{
		Text: "bond yields fell as markets priced in rate cuts",
		TopK: 1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Retrieval.Hits)
	assert.Equal(t, "stocks-2", result.Retrieval.Hits[0].Document.Id)
	assert.NotEqual(t, core.TopicNone, result.Retrieval.Hits[0].Document.TopicId,
		"topic assignments survive a restart")
}

func TestEngine_Delete(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, testCorpus()...)
	require.NoError(t, err)

	require.NoError(t, engine.Delete(ctx, "cats-1", "cats-2"))
	assert.Equal(t, 2, engine.DocumentCount())

	result, err := engine.Query(ctx, &core.Query{Text: "felines", TopK: 10})
	require.NoError(t, err)
	for _, hit := range result.Retrieval.Hits {
		assert.NotContains(t, []string{"cats-1", "cats-2"}, hit.Document.Id)
	}
}

func TestEngine_Reindex(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, testCorpus()...)
	require.NoError(t, err)
	_, err = engine.Recluster(ctx, 2)
	require.NoError(t, err)

	var out bytes.Buffer
	processed, err := engine.Reindex(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, 4, processed)
	assert.Contains(t, out.String(), "Reindex complete")

	// The old assignments were meaningless in the new vector space, so the
	// clustering was refitted and bumped to a new version.
	require.NotNil(t, engine.Topics())
	assert.Equal(t, uint64(2), engine.Topics().Version)

	result, err := engine.Query(ctx, &core.Query{Text: "felines", TopK: 1})
	require.NoError(t, err)
	require.NotEmpty(t, result.Retrieval.Hits)
	assert.Equal(t, uint64(2), result.Retrieval.Hits[0].Document.TopicVersion)
	assert.NotEqual(t, core.TopicNone, result.Retrieval.Hits[0].Document.TopicId)
}

func ExampleEngine() {
	cfg := config.Default()
	cfg.Storage.InMemory = true

	engine, err := NewEngine(cfg, WithAIProvider(mock.NewMockProvider()))
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	docs := []*core.Document{
		{Id: "go-1", Text: "goroutines are lightweight threads managed by the runtime"},
	}
	if _, err := engine.Ingest(context.Background(), docs...); err != nil {
		panic(err)
	}

	result, err := engine.Query(context.Background(), &core.Query{
		Text: "goroutines are lightweight threads managed by the runtime",
		TopK: 1,
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(result.Retrieval.Hits[0].Document.Id)
	// Output: go-1
}
