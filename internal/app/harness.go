package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"slices"
	"sort"
	"time"

	"batchfetch/internal/batch"
	"batchfetch/internal/config"
	"batchfetch/internal/dbexec"
	"batchfetch/internal/logging"
	"batchfetch/internal/model"
	"batchfetch/internal/observability"
	"batchfetch/internal/planner"
	"batchfetch/internal/sqlstore"
	"batchfetch/internal/sqlutil"
)

// ErrRoundMismatch reports a round whose loaded data differs from the first round.
var ErrRoundMismatch = errors.New("round data differs from first round")

// RoundReport summarizes one load round.
type RoundReport struct {
	Round      int
	Parents    int
	Children   int
	Tags       int
	Queries    int64
	Executions int64
	SubQueries int64
	CacheHits  int64
	Duration   time.Duration
}

// Report collects the rounds of one harness run.
type Report struct {
	Seed   uint64
	Rounds []RoundReport
}

// Queries returns the number of SELECT statements issued across all rounds.
func (r *Report) Queries() int64 {
	var total int64
	for _, round := range r.Rounds {
		total += round.Queries
	}
	return total
}

// snapshot holds what one round read: assessment key -> answer key -> sorted tags.
type snapshot map[batch.Key]map[batch.Key][]string

// Harness seeds the assessment/answer/tag tables and repeatedly loads them through
// batch sessions, reading every answer's tags in a shuffled assessment order.
type Harness struct {
	registry *model.Registry
	store    *sqlstore.Store
	queries  *dbexec.CountingExecutor
	demo     config.DemoConfig
	batch    config.BatchConfig
	metrics  *observability.BatchMetrics
}

// NewHarness builds a harness issuing statements for dialect through exec. Setup and Run
// log through the logger carried by their context.
func NewHarness(exec dbexec.QueryExecutor, dialect sqlutil.Dialect, cfg *config.Config, metrics *observability.BatchMetrics) (*Harness, error) {
	registry, err := DemoRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build demo registry: %w", err)
	}
	counting := dbexec.NewCountingExecutor(exec)
	return &Harness{
		registry: registry,
		store:    sqlstore.New(counting, dialect),
		queries:  counting,
		demo:     cfg.Demo,
		batch:    cfg.Batch,
		metrics:  metrics,
	}, nil
}

// Setup creates the demo tables if needed and replaces their contents with
// demo.parents assessments of demo.children_per_parent answers each. Answer ids are
// (assessment-1)*children+n so every run seeds identical data.
func (h *Harness) Setup(ctx context.Context) error {
	stmts, err := schemaStatements(h.store.Dialect())
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := h.store.Exec(ctx, planner.SQLQuery{SQL: stmt}); err != nil {
			return fmt.Errorf("failed to create demo schema: %w", err)
		}
	}

	for _, table := range []string{tagsTable, answersTable, assessmentsTable} {
		query, err := planner.PlanDeleteAll(h.store.Dialect(), table)
		if err != nil {
			return err
		}
		if _, err := h.store.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	var assessments, answers, tags [][]any
	for i := 1; i <= h.demo.Parents; i++ {
		assessments = append(assessments, []any{int64(i), fmt.Sprintf("assessment %d", i)})
		for j := 1; j <= h.demo.ChildrenPerParent; j++ {
			answerID := int64((i-1)*h.demo.ChildrenPerParent + j)
			answers = append(answers, []any{answerID, int64(i), fmt.Sprintf("Answer %d.%d", i, j)})
			for k := 0; k < h.demo.TagsPerChild; k++ {
				tags = append(tags, []any{answerID, tagName(k)})
			}
		}
	}

	inserts := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{assessmentsTable, []string{"id", "name"}, assessments},
		{answersTable, []string{"id", "assessment_id", "text"}, answers},
		{tagsTable, []string{"answer_id", "tag"}, tags},
	}
	for _, ins := range inserts {
		for chunk := range slices.Chunk(ins.rows, h.insertChunkSize()) {
			query, err := planner.PlanInsertRows(h.store.Dialect(), ins.table, ins.columns, chunk)
			if err != nil {
				return err
			}
			if _, err := h.store.Exec(ctx, query); err != nil {
				return fmt.Errorf("failed to seed %s: %w", ins.table, err)
			}
		}
	}

	logging.FromContext(ctx).Info("demo data seeded",
		slog.Int("assessments", len(assessments)),
		slog.Int("answers", len(answers)),
		slog.Int("tags", len(tags)),
	)
	return nil
}

func (h *Harness) insertChunkSize() int {
	if h.batch.ChunkSize > 0 {
		return h.batch.ChunkSize
	}
	return batch.DefaultChunkSize
}

func tagName(n int) string {
	return fmt.Sprintf("tag-%02d", n)
}

func (h *Harness) hints() batch.Hints {
	hints := batch.Hints{BatchSize: h.demo.BatchSize}
	if h.demo.BatchPath != "" {
		hints.BatchPaths = []string{h.demo.BatchPath}
	}
	return hints
}

// Run executes demo.rounds rounds and fails on the first round that errors or reads
// different data than the first one.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	seed := h.demo.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	report := &Report{Seed: seed}
	logger := logging.FromContext(ctx)

	ids := make([]any, 0, h.demo.Parents)
	for i := 1; i <= h.demo.Parents; i++ {
		ids = append(ids, int64(i))
	}

	logger.Info("starting rounds",
		slog.Int("rounds", h.demo.Rounds),
		slog.Uint64("seed", seed),
		slog.String("batch_path", h.demo.BatchPath),
		slog.Int("batch_size", h.demo.BatchSize),
	)

	var baseline snapshot
	for round := 1; round <= h.demo.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result, data, err := h.runRound(ctx, logger, round, ids, seed)
		if err != nil {
			return report, fmt.Errorf("round %d: %w", round, err)
		}
		if baseline == nil {
			baseline = data
		} else if diff := diffSnapshots(baseline, data); len(diff) > 0 {
			return report, fmt.Errorf("round %d: %w for %v", round, ErrRoundMismatch, diff)
		}
		report.Rounds = append(report.Rounds, result)
	}

	logger.Info("rounds complete",
		slog.Int("rounds", len(report.Rounds)),
		slog.Int64("queries", report.Queries()),
	)
	return report, nil
}

func (h *Harness) runRound(ctx context.Context, logger *logging.Logger, round int, ids []any, seed uint64) (RoundReport, snapshot, error) {
	start := time.Now()
	h.queries.Reset()

	session := batch.NewSession(h.registry, h.store, batch.Options{
		ChunkSize: h.batch.ChunkSize,
		MaxDepth:  h.batch.MaxDepth,
		Logger:    logger,
		Metrics:   h.metrics,
	})
	defer session.Close()

	logger = logger.WithSessionID(session.ID()).WithFields(slog.Int("round", round))
	logger.Info("round started")

	assessments, err := session.Find(ctx, assessmentKind, ids, h.hints())
	if err != nil {
		return RoundReport{}, nil, err
	}

	rng := rand.New(rand.NewPCG(seed, uint64(round)))
	rng.Shuffle(len(assessments), func(i, j int) {
		assessments[i], assessments[j] = assessments[j], assessments[i]
	})

	data := make(snapshot, len(assessments))
	result := RoundReport{Round: round, Parents: len(assessments)}
	for _, assessment := range assessments {
		answers, err := readAnswers(ctx, assessment)
		if err != nil {
			logger.Error("processing failed",
				slog.String("assessment", assessment.String()),
				slog.String("error", err.Error()),
			)
			return RoundReport{}, nil, err
		}
		data[assessment.Key()] = answers
		result.Children += len(answers)
		for _, tags := range answers {
			result.Tags += len(tags)
		}
		logger.Info("processed", slog.String("assessment", assessment.String()))
	}

	stats := session.Stats()
	result.Queries = h.queries.Queries()
	result.Executions = stats.Executions
	result.SubQueries = stats.SubQueries
	result.CacheHits = stats.CacheHits
	result.Duration = time.Since(start)

	logger.Info("round finished",
		slog.Int("children", result.Children),
		slog.Int64("queries", result.Queries),
		slog.Int64("batch_executions", result.Executions),
		slog.Duration("duration", result.Duration),
	)
	return result, data, nil
}

// readAnswers walks assessment.answers and every answer's tags.
func readAnswers(ctx context.Context, assessment *batch.Entity) (map[batch.Key][]string, error) {
	answers := assessment.Collection("answers")
	if answers == nil {
		return nil, fmt.Errorf("%s has no answers collection", assessment)
	}

	out := make(map[batch.Key][]string)
	err := answers.Each(ctx, func(answer *batch.Entity) error {
		tags := answer.Collection("tags")
		if tags == nil {
			return fmt.Errorf("%s has no tags collection", answer)
		}
		values := []string{}
		if err := tags.Each(ctx, func(tag *batch.Entity) error {
			values = append(values, fmt.Sprint(tag.Value("tag")))
			return nil
		}); err != nil {
			return err
		}
		sort.Strings(values)
		out[answer.Key()] = values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// diffSnapshots returns the sorted keys of assessments whose data differs.
func diffSnapshots(want, got snapshot) []batch.Key {
	var diff []batch.Key
	for key, answers := range want {
		if !reflect.DeepEqual(answers, got[key]) {
			diff = append(diff, key)
		}
	}
	for key := range got {
		if _, ok := want[key]; !ok {
			diff = append(diff, key)
		}
	}
	slices.Sort(diff)
	return diff
}
