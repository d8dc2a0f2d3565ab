package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalDuration(t *testing.T) {
	assert.Equal(t, int64(30), Interval{Start: 20, Stop: 50}.Duration())
	assert.Zero(t, Interval{Start: 5, Stop: 5}.Duration())
}

func TestIntervalContains(t *testing.T) {
	iv := Interval{Start: 10, Stop: 20}
	assert.True(t, iv.Contains(10))
	assert.True(t, iv.Contains(19))
	assert.False(t, iv.Contains(20))
	assert.False(t, iv.Contains(9))
}

func TestCloneValuesIsolation(t *testing.T) {
	iv := Interval{SubjectID: "s1", Start: 0, Stop: 10, Values: []Value{Cat("A")}}
	clone := iv.CloneValues()
	clone.Values[0] = Cat("B")
	assert.Equal(t, "A", iv.Values[0].Category)
}

func TestValueConstructors(t *testing.T) {
	assert.Equal(t, "A", Cat("A").Category)
	assert.Equal(t, 2.5, Num(2.5).Number)
	assert.True(t, NA().Missing)
	assert.False(t, Cat("A").Missing)
}

func TestPanelColumnIndex(t *testing.T) {
	p := &Panel{Columns: []Column{{Name: "exposure"}, {Name: "dose", Continuous: true}}}
	assert.Equal(t, 0, p.ColumnIndex("exposure"))
	assert.Equal(t, 1, p.ColumnIndex("dose"))
	assert.Equal(t, -1, p.ColumnIndex("missing"))
}

func TestPanelSort(t *testing.T) {
	p := &Panel{Intervals: []Interval{
		{SubjectID: "s2", Start: 0, Stop: 10},
		{SubjectID: "s1", Start: 20, Stop: 30},
		{SubjectID: "s1", Start: 0, Stop: 20},
		{SubjectID: "s1", Start: 0, Stop: 10},
	}}
	p.Sort()

	assert.Equal(t, "s1", p.Intervals[0].SubjectID)
	assert.Equal(t, int64(10), p.Intervals[0].Stop)
	assert.Equal(t, int64(20), p.Intervals[1].Stop)
	assert.Equal(t, int64(20), p.Intervals[2].Start)
	assert.Equal(t, "s2", p.Intervals[3].SubjectID)
}

func TestPanelSubjects(t *testing.T) {
	p := &Panel{Intervals: []Interval{
		{SubjectID: "s3", Start: 0, Stop: 1},
		{SubjectID: "s1", Start: 0, Stop: 1},
		{SubjectID: "s3", Start: 1, Stop: 2},
	}}
	assert.Equal(t, []string{"s1", "s3"}, p.Subjects())
	assert.Empty(t, (&Panel{}).Subjects())
}

func TestPanelBySubject(t *testing.T) {
	p := &Panel{Intervals: []Interval{
		{SubjectID: "s1", Start: 0, Stop: 10},
		{SubjectID: "s2", Start: 0, Stop: 5},
		{SubjectID: "s1", Start: 10, Stop: 20},
	}}
	by := p.BySubject()
	require.Len(t, by["s1"], 2)
	require.Len(t, by["s2"], 1)
}

func TestPanelPersonTime(t *testing.T) {
	p := &Panel{Intervals: []Interval{
		{SubjectID: "s1", Start: 0, Stop: 10},
		{SubjectID: "s1", Start: 10, Stop: 25},
		{SubjectID: "s2", Start: 5, Stop: 5},
	}}
	totals := p.PersonTime()
	assert.Equal(t, int64(25), totals["s1"])
	assert.Zero(t, totals["s2"])
}
