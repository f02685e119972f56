package analysis

import (
	"fmt"
	"sort"

	"github.com/henny-hen/DASOS-backend/internal/storage/models"
)

// DiffSets returns the identifiers added and removed going from before to after.
func DiffSets(before, after []string) (added, removed []string) {
	b := NewStringSet(before...)
	a := NewStringSet(after...)
	return a.Difference(b).Sorted(), b.Difference(a).Sorted()
}

// DetectFacultyChange compares two faculty snapshots of the same subject.
// Magnitude counts every addition and removal against the size of the first
// set, with an empty first set treated as size one.
func DetectFacultyChange(first, second models.FacultySnapshot) (models.ChangeEvent, error) {
	if first.SubjectCode != second.SubjectCode {
		return models.ChangeEvent{}, fmt.Errorf("faculty snapshots belong to different subjects: %s and %s",
			first.SubjectCode, second.SubjectCode)
	}

	ev := newChangeEvent(models.FactorFaculty, first.SubjectCode, first.AcademicYear, second.AcademicYear,
		first.Faculty, second.Faculty)

	base := NewStringSet(first.Faculty...).Len()
	if base < 1 {
		base = 1
	}
	magnitude := float64(len(ev.Added)+len(ev.Removed)) / float64(base) * 100
	ev.Magnitude = &magnitude

	return ev, nil
}

func DetectEvaluationChange(first, second models.EvaluationSnapshot) (models.ChangeEvent, error) {
	if first.SubjectCode != second.SubjectCode {
		return models.ChangeEvent{}, fmt.Errorf("evaluation snapshots belong to different subjects: %s and %s",
			first.SubjectCode, second.SubjectCode)
	}

	return newChangeEvent(models.FactorEvaluation, first.SubjectCode, first.AcademicYear, second.AcademicYear,
		first.Methods, second.Methods), nil
}

func newChangeEvent(kind models.Factor, subject, year1, year2 string, before, after []string) models.ChangeEvent {
	added, removed := DiffSets(before, after)
	return models.ChangeEvent{
		SubjectCode: subject,
		Year1:       year1,
		Year2:       year2,
		Kind:        kind,
		Added:       added,
		Removed:     removed,
		Changed:     len(added)+len(removed) > 0,
	}
}

// MergeFacultyByYear unions the faculty of snapshots that share a subject and
// academic year (one per semester) and returns them ordered by year.
func MergeFacultyByYear(snapshots []models.FacultySnapshot) []models.FacultySnapshot {
	return mergeByYear(snapshots,
		func(s models.FacultySnapshot) (string, string) { return s.SubjectCode, s.AcademicYear },
		func(s models.FacultySnapshot) []string { return s.Faculty },
		func(s models.FacultySnapshot, members []string) models.FacultySnapshot {
			s.Faculty = members
			return s
		},
	)
}

func MergeEvaluationByYear(snapshots []models.EvaluationSnapshot) []models.EvaluationSnapshot {
	return mergeByYear(snapshots,
		func(s models.EvaluationSnapshot) (string, string) { return s.SubjectCode, s.AcademicYear },
		func(s models.EvaluationSnapshot) []string { return s.Methods },
		func(s models.EvaluationSnapshot, members []string) models.EvaluationSnapshot {
			s.Methods = members
			return s
		},
	)
}

// mergeByYear keeps the first snapshot of each (subject, year) with the union
// of all their members, sorted.
func mergeByYear[S any](
	snapshots []S,
	key func(S) (subject, year string),
	members func(S) []string,
	with func(S, []string) S,
) []S {
	type group struct {
		base    S
		members StringSet
	}
	groups := make(map[[2]string]*group)
	for _, s := range snapshots {
		subject, year := key(s)
		k := [2]string{subject, year}
		g, ok := groups[k]
		if !ok {
			g = &group{base: s, members: NewStringSet()}
			groups[k] = g
		}
		g.members = g.members.Union(NewStringSet(members(s)...))
	}

	out := make([]S, 0, len(groups))
	for _, g := range groups {
		out = append(out, with(g.base, g.members.Sorted()))
	}
	sort.Slice(out, func(i, j int) bool {
		si, yi := key(out[i])
		sj, yj := key(out[j])
		if si != sj {
			return si < sj
		}
		return CompareYears(yi, yj) < 0
	})
	return out
}
