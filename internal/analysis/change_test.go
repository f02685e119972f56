package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

func faculty(year string, names ...string) models.FacultySnapshot {
	return models.FacultySnapshot{SubjectCode: "X", AcademicYear: year, Semester: "1S", Faculty: names}
}

func TestDetectFacultyChangeSameSet(t *testing.T) {
	sets := [][]string{
		nil,
		{"Ana"},
		{"Ana", "Luis", "Marta"},
	}
	for _, s := range sets {
		ev, err := DetectFacultyChange(faculty("2021-22", s...), faculty("2022-23", s...))
		require.NoError(t, err)
		assert.False(t, ev.Changed)
		assert.Empty(t, ev.Added)
		assert.Empty(t, ev.Removed)
		require.NotNil(t, ev.Magnitude)
		assert.Equal(t, 0.0, *ev.Magnitude)
	}
}

func TestDetectFacultyChangeDirection(t *testing.T) {
	a := []string{"Ana", "Luis", "Marta"}
	b := []string{"Luis", "Pedro"}

	forward, err := DetectFacultyChange(faculty("2021-22", a...), faculty("2022-23", b...))
	require.NoError(t, err)
	backward, err := DetectFacultyChange(faculty("2022-23", b...), faculty("2021-22", a...))
	require.NoError(t, err)

	assert.Equal(t, forward.Added, backward.Removed)
	assert.Equal(t, forward.Removed, backward.Added)
	assert.Equal(t, []string{"Pedro"}, forward.Added)
	assert.Equal(t, []string{"Ana", "Marta"}, forward.Removed)
	assert.True(t, forward.Changed)
	assert.InDelta(t, 100.0, *forward.Magnitude, 1e-9)
	assert.InDelta(t, 150.0, *backward.Magnitude, 1e-9)
}

func TestDetectFacultyChangeNormalisesIdentifiers(t *testing.T) {
	ev, err := DetectFacultyChange(
		faculty("2021-22", " Ana ", "Ana", ""),
		faculty("2022-23", "Ana", "   "),
	)
	require.NoError(t, err)
	assert.False(t, ev.Changed)
}

func TestDetectFacultyChangeEmptyFirstSet(t *testing.T) {
	ev, err := DetectFacultyChange(faculty("2021-22"), faculty("2022-23", "Ana", "Luis"))
	require.NoError(t, err)
	assert.True(t, ev.Changed)
	assert.InDelta(t, 200.0, *ev.Magnitude, 1e-9)
}

func TestDetectChangeRejectsDifferentSubjects(t *testing.T) {
	other := faculty("2022-23", "Ana")
	other.SubjectCode = "Y"
	_, err := DetectFacultyChange(faculty("2021-22", "Ana"), other)
	assert.Error(t, err)

	_, err = DetectEvaluationChange(
		models.EvaluationSnapshot{SubjectCode: "X", AcademicYear: "2021-22"},
		models.EvaluationSnapshot{SubjectCode: "Y", AcademicYear: "2022-23"},
	)
	assert.Error(t, err)
}

func TestDetectEvaluationChange(t *testing.T) {
	ev, err := DetectEvaluationChange(
		models.EvaluationSnapshot{SubjectCode: "X", AcademicYear: "2021-22", Methods: []string{"Examen final", "Prácticas"}},
		models.EvaluationSnapshot{SubjectCode: "X", AcademicYear: "2022-23", Methods: []string{"Examen final", "Evaluación continua"}},
	)
	require.NoError(t, err)
	assert.Equal(t, models.FactorEvaluation, ev.Kind)
	assert.True(t, ev.Changed)
	assert.Equal(t, []string{"Evaluación continua"}, ev.Added)
	assert.Equal(t, []string{"Prácticas"}, ev.Removed)
	assert.Nil(t, ev.Magnitude)
}

func TestMergeFacultyByYear(t *testing.T) {
	merged := MergeFacultyByYear([]models.FacultySnapshot{
		{SubjectCode: "X", AcademicYear: "2022-23", Semester: "2S", Faculty: []string{"Luis"}},
		{SubjectCode: "X", AcademicYear: "2021-22", Semester: "1S", Faculty: []string{"Ana"}},
		{SubjectCode: "X", AcademicYear: "2022-23", Semester: "1S", Faculty: []string{"Ana", "Luis"}},
	})
	require.Len(t, merged, 2)
	assert.Equal(t, "2021-22", merged[0].AcademicYear)
	assert.Equal(t, []string{"Ana", "Luis"}, merged[1].Faculty)
}

func TestMergeEvaluationByYear(t *testing.T) {
	merged := MergeEvaluationByYear([]models.EvaluationSnapshot{
		{SubjectCode: "Y", AcademicYear: "2021-22", Semester: "1S", Methods: []string{"exam"}},
		{SubjectCode: "X", AcademicYear: "2021-22", Semester: "2S", Methods: []string{"project", " exam "}},
		{SubjectCode: "X", AcademicYear: "2021-22", Semester: "1S", Methods: []string{"exam", ""}},
	})
	require.Len(t, merged, 2)
	assert.Equal(t, "X", merged[0].SubjectCode)
	assert.Equal(t, "2S", merged[0].Semester)
	assert.Equal(t, []string{"exam", "project"}, merged[0].Methods)
	assert.Equal(t, "Y", merged[1].SubjectCode)
}

func TestCompareYears(t *testing.T) {
	years := []string{"2023-24", "2019/20", "unknown", "2021"}
	SortYears(years)
	assert.Equal(t, []string{"2019/20", "2021", "2023-24", "unknown"}, years)

	assert.Equal(t, []float64{0, 2, 4}, yearIndexes([]string{"2019-20", "2021-22", "2023-24"}))
	assert.Equal(t, []float64{0, 1, 2}, yearIndexes([]string{"2019-20", "spring", "autumn"}))
}
