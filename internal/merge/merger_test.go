package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvpanel/internal/diagnostics"
	"tvpanel/internal/errors"
	"tvpanel/pkg/contracts/domain"
)

func exposurePanel(id string, spans ...[3]interface{}) *domain.Panel {
	p := &domain.Panel{Columns: []domain.Column{{Name: "exposure"}}}
	for _, s := range spans {
		p.Intervals = append(p.Intervals, domain.Interval{
			SubjectID: id,
			Start:     int64(s[0].(int)),
			Stop:      int64(s[1].(int)),
			Values:    []domain.Value{domain.Cat(s[2].(string))},
		})
	}
	return p
}

func scorePanel(id string, spans ...[3]interface{}) *domain.Panel {
	p := &domain.Panel{Columns: []domain.Column{{Name: "score", Continuous: true}}}
	for _, s := range spans {
		p.Intervals = append(p.Intervals, domain.Interval{
			SubjectID: id,
			Start:     int64(s[0].(int)),
			Stop:      int64(s[1].(int)),
			Values:    []domain.Value{domain.Num(float64(s[2].(int)))},
		})
	}
	return p
}

func TestMergeUnionOfBoundaries(t *testing.T) {
	m := NewMerger(nil, DefaultConfig())

	a := exposurePanel("s1", [3]interface{}{0, 10, "A"})
	b := scorePanel("s1", [3]interface{}{5, 15, 10})

	out, report, err := m.Merge(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)

	require.Len(t, out.Columns, 2)
	assert.Equal(t, "exposure", out.Columns[0].Name)
	assert.Equal(t, "score", out.Columns[1].Name)
	assert.True(t, out.Columns[1].Continuous)

	require.Len(t, out.Intervals, 3)

	// [0,5): only the exposure panel covers it
	assert.Equal(t, int64(0), out.Intervals[0].Start)
	assert.Equal(t, "A", out.Intervals[0].Values[0].Category)
	assert.True(t, out.Intervals[0].Values[1].Missing)

	// [5,10): both cover; the score interval contributes half its mass
	assert.Equal(t, int64(5), out.Intervals[1].Start)
	assert.Equal(t, "A", out.Intervals[1].Values[0].Category)
	assert.InDelta(t, 5.0, out.Intervals[1].Values[1].Number, 1e-9)

	// [10,15): only the score panel covers it
	assert.Equal(t, int64(10), out.Intervals[2].Start)
	assert.True(t, out.Intervals[2].Values[0].Missing)
	assert.InDelta(t, 5.0, out.Intervals[2].Values[1].Number, 1e-9)

	assert.Equal(t, 2, report.Counts[diagnostics.CountIntervalsNA])
}

func TestMergeProrationConservesContinuousMass(t *testing.T) {
	m := NewMerger(nil, DefaultConfig())

	a := scorePanel("s1", [3]interface{}{0, 10, 100})
	b := exposurePanel("s1",
		[3]interface{}{0, 5, "A"},
		[3]interface{}{5, 10, "B"})

	out, _, err := m.Merge(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)

	require.Len(t, out.Intervals, 2)
	var total float64
	for _, iv := range out.Intervals {
		total += iv.Values[0].Number
	}
	assert.InDelta(t, 100.0, total, 1e-9)
	assert.InDelta(t, 50.0, out.Intervals[0].Values[0].Number, 1e-9)
}

func TestMergeCategoricalCopiedNotProrated(t *testing.T) {
	m := NewMerger(nil, DefaultConfig())

	a := exposurePanel("s1", [3]interface{}{0, 10, "A"})
	b := scorePanel("s1",
		[3]interface{}{0, 5, 1},
		[3]interface{}{5, 10, 2})

	out, _, err := m.Merge(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)

	require.Len(t, out.Intervals, 2)
	assert.Equal(t, "A", out.Intervals[0].Values[0].Category)
	assert.Equal(t, "A", out.Intervals[1].Values[0].Category)
}

func TestMergeRequiresTwoPanels(t *testing.T) {
	m := NewMerger(nil, DefaultConfig())

	_, _, err := m.Merge(context.Background(),
		[]*domain.Panel{exposurePanel("s1", [3]interface{}{0, 10, "A"})})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientPanels))
	assert.Equal(t, errors.ErrTypeMerge, errors.TypeOf(err))
}

func TestMergeNamingOptions(t *testing.T) {
	a := exposurePanel("s1", [3]interface{}{0, 10, "A"})
	b := exposurePanel("s1", [3]interface{}{0, 10, "B"})

	t.Run("renames replace column names", func(t *testing.T) {
		m := NewMerger(nil, Config{Renames: [][]string{{"drug"}, {"statin"}}})
		out, _, err := m.Merge(context.Background(), []*domain.Panel{a, b})
		require.NoError(t, err)
		assert.Equal(t, "drug", out.Columns[0].Name)
		assert.Equal(t, "statin", out.Columns[1].Name)
	})

	t.Run("prefixes qualify column names", func(t *testing.T) {
		m := NewMerger(nil, Config{Prefixes: []string{"a_", "b_"}})
		out, _, err := m.Merge(context.Background(), []*domain.Panel{a, b})
		require.NoError(t, err)
		assert.Equal(t, "a_exposure", out.Columns[0].Name)
		assert.Equal(t, "b_exposure", out.Columns[1].Name)
	})

	t.Run("renames and prefixes conflict", func(t *testing.T) {
		m := NewMerger(nil, Config{
			Renames:  [][]string{{"x"}, {"y"}},
			Prefixes: []string{"a_", "b_"},
		})
		_, _, err := m.Merge(context.Background(), []*domain.Panel{a, b})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeConflictingNaming))
	})

	t.Run("rename list length must match columns", func(t *testing.T) {
		m := NewMerger(nil, Config{Renames: [][]string{{"x", "extra"}, {"y"}}})
		_, _, err := m.Merge(context.Background(), []*domain.Panel{a, b})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeColumnCountMismatch))
	})

	t.Run("one rename list per panel", func(t *testing.T) {
		m := NewMerger(nil, Config{Renames: [][]string{{"x"}}})
		_, _, err := m.Merge(context.Background(), []*domain.Panel{a, b})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeColumnCountMismatch))
	})

	t.Run("duplicate output names rejected", func(t *testing.T) {
		m := NewMerger(nil, DefaultConfig())
		_, _, err := m.Merge(context.Background(), []*domain.Panel{a, b})
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeConflictingNaming))
	})
}

func TestMergeStrictSubjectMismatch(t *testing.T) {
	m := NewMerger(nil, DefaultConfig())

	a := exposurePanel("s1", [3]interface{}{0, 10, "A"})
	b := scorePanel("s2", [3]interface{}{0, 10, 5})

	_, report, err := m.Merge(context.Background(), []*domain.Panel{a, b})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSubjectSetMismatch))
	assert.Equal(t, 2, report.Counts[diagnostics.CountSubjectsMissing])
}

func TestMergeLenientSubjectUnion(t *testing.T) {
	m := NewMerger(nil, Config{Mode: ModeLenient})

	a := exposurePanel("s1", [3]interface{}{0, 10, "A"})
	b := scorePanel("s2", [3]interface{}{0, 10, 5})

	out, report, err := m.Merge(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)

	require.Len(t, out.Intervals, 2)
	assert.Equal(t, []string{"s1", "s2"}, out.Subjects())

	// s1 has no score panel rows, s2 has no exposure rows
	assert.True(t, out.Intervals[0].Values[1].Missing)
	assert.True(t, out.Intervals[1].Values[0].Missing)
	assert.Equal(t, 2, report.Counts[diagnostics.CountSubjectsMissing])
	assert.Len(t, report.Warnings, 2)
}

func TestMergePointIntervalSurvives(t *testing.T) {
	m := NewMerger(nil, DefaultConfig())

	a := exposurePanel("s1", [3]interface{}{0, 10, "A"})
	point := &domain.Panel{
		Columns: []domain.Column{{Name: "procedure"}},
		Intervals: []domain.Interval{{
			SubjectID: "s1", Start: 5, Stop: 5,
			Values: []domain.Value{domain.Cat("surgery")},
		}},
	}

	out, _, err := m.Merge(context.Background(), []*domain.Panel{a, point})
	require.NoError(t, err)

	require.Len(t, out.Intervals, 3)
	assert.Equal(t, int64(5), out.Intervals[1].Start)
	assert.Equal(t, int64(5), out.Intervals[1].Stop)
	assert.Equal(t, "surgery", out.Intervals[1].Values[1].Category)
	assert.Equal(t, "A", out.Intervals[1].Values[0].Category)
}

func TestMergeSkipsUncoveredSpans(t *testing.T) {
	m := NewMerger(nil, DefaultConfig())

	a := exposurePanel("s1",
		[3]interface{}{0, 10, "A"},
		[3]interface{}{20, 30, "B"})
	b := scorePanel("s1",
		[3]interface{}{0, 10, 1},
		[3]interface{}{20, 30, 2})

	out, _, err := m.Merge(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)

	// [10,20) is covered by no panel and emits no row
	require.Len(t, out.Intervals, 2)
	assert.Equal(t, int64(10), out.Intervals[0].Stop)
	assert.Equal(t, int64(20), out.Intervals[1].Start)
}

func TestMergeDisjointPanelsEmitNoRows(t *testing.T) {
	m := NewMerger(nil, DefaultConfig())

	a := exposurePanel("s1", [3]interface{}{0, 10, "A"})
	b := scorePanel("s1", [3]interface{}{20, 30, 7})

	out, report, err := m.Merge(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)

	// no shared span at all means the subject contributes nothing
	assert.Empty(t, out.Intervals)
	assert.Equal(t, 1, report.Counts[diagnostics.CountSubjectsDisjoint])
	assert.NotEmpty(t, report.Warnings)
}

func TestMergeDisjointSubjectAmongOverlappingOnes(t *testing.T) {
	m := NewMerger(nil, DefaultConfig())

	a := &domain.Panel{Columns: []domain.Column{{Name: "exposure"}}}
	b := &domain.Panel{Columns: []domain.Column{{Name: "score", Continuous: true}}}
	a.Intervals = append(a.Intervals,
		domain.Interval{SubjectID: "s1", Start: 0, Stop: 10, Values: []domain.Value{domain.Cat("A")}},
		domain.Interval{SubjectID: "s2", Start: 0, Stop: 10, Values: []domain.Value{domain.Cat("A")}})
	b.Intervals = append(b.Intervals,
		domain.Interval{SubjectID: "s1", Start: 5, Stop: 15, Values: []domain.Value{domain.Num(10)}},
		domain.Interval{SubjectID: "s2", Start: 50, Stop: 60, Values: []domain.Value{domain.Num(10)}})

	out, report, err := m.Merge(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)

	assert.Equal(t, []string{"s1"}, out.Subjects())
	assert.Equal(t, 1, report.Counts[diagnostics.CountSubjectsDisjoint])
}

func TestMergeAssociative(t *testing.T) {
	newMerger := func() *Merger { return NewMerger(nil, DefaultConfig()) }

	a := exposurePanel("s1", [3]interface{}{0, 8, "A"})
	b := scorePanel("s1", [3]interface{}{4, 12, 8})
	c := &domain.Panel{
		Columns: []domain.Column{{Name: "dose", Continuous: true}},
		Intervals: []domain.Interval{{
			SubjectID: "s1", Start: 6, Stop: 16,
			Values: []domain.Value{domain.Num(20)},
		}},
	}

	ab, _, err := newMerger().Merge(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)
	left, _, err := newMerger().Merge(context.Background(), []*domain.Panel{ab, c})
	require.NoError(t, err)

	bc, _, err := newMerger().Merge(context.Background(), []*domain.Panel{b, c})
	require.NoError(t, err)
	right, _, err := newMerger().Merge(context.Background(), []*domain.Panel{a, bc})
	require.NoError(t, err)

	assert.Equal(t, left.Columns, right.Columns)
	assert.Equal(t, left.Intervals, right.Intervals)

	flat, _, err := newMerger().Merge(context.Background(), []*domain.Panel{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, flat.Intervals, left.Intervals)
}

func TestMergeBatchesMatchesSingleMerge(t *testing.T) {
	a := &domain.Panel{Columns: []domain.Column{{Name: "exposure"}}}
	b := &domain.Panel{Columns: []domain.Column{{Name: "score", Continuous: true}}}
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		a.Intervals = append(a.Intervals,
			domain.Interval{SubjectID: id, Start: 0, Stop: 10, Values: []domain.Value{domain.Cat("A")}},
			domain.Interval{SubjectID: id, Start: 10, Stop: 30, Values: []domain.Value{domain.Cat("B")}})
		b.Intervals = append(b.Intervals,
			domain.Interval{SubjectID: id, Start: 5, Stop: 25, Values: []domain.Value{domain.Num(40)}})
	}

	single := NewMerger(nil, DefaultConfig())
	want, _, err := single.Merge(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)

	batched := NewMerger(nil, Config{Mode: ModeStrictIDs, BatchSize: 2, Workers: 2})
	got, report, err := batched.MergeBatches(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)

	assert.Equal(t, want.Columns, got.Columns)
	assert.Equal(t, want.Intervals, got.Intervals)
	assert.Zero(t, report.Counts[diagnostics.CountSubjectsMissing])
}

func TestMergeBatchesValidatesBeforeScheduling(t *testing.T) {
	m := NewMerger(nil, Config{Mode: ModeStrictIDs, BatchSize: 1})

	a := exposurePanel("s1", [3]interface{}{0, 10, "A"})
	b := scorePanel("s2", [3]interface{}{0, 10, 5})

	_, _, err := m.MergeBatches(context.Background(), []*domain.Panel{a, b})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSubjectSetMismatch))
}

func TestMergeBatchesSingleBatchFallback(t *testing.T) {
	m := NewMerger(nil, Config{Mode: ModeStrictIDs, BatchSize: 100})

	a := exposurePanel("s1", [3]interface{}{0, 10, "A"})
	b := scorePanel("s1", [3]interface{}{0, 10, 5})

	out, _, err := m.MergeBatches(context.Background(), []*domain.Panel{a, b})
	require.NoError(t, err)
	require.Len(t, out.Intervals, 1)
}
