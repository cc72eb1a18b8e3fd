package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/qiuhuiming/titan-track/internal/domain"
)

var exerciseTable = tableDef[domain.Exercise]{
	name:    "exercises",
	columns: []string{"name", "muscle_group", "equipment", "notes", "personal_best"},
	values: func(e *domain.Exercise) []any {
		return []any{e.Name, string(e.MuscleGroup), e.Equipment, e.Notes, e.PersonalBest}
	},
	targets: func(e *domain.Exercise) []any {
		return []any{&e.Name, (*string)(&e.MuscleGroup), &e.Equipment, &e.Notes, &e.PersonalBest}
	},
}

var planTable = tableDef[domain.WorkoutPlan]{
	name:    "workout_plans",
	columns: []string{"plan_date", "title", "tags", "exercises", "is_completed"},
	values: func(p *domain.WorkoutPlan) []any {
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}
		return []any{dateOnly(p.Date), p.Title, tags, jsonArray(p.Exercises), p.IsCompleted}
	},
	targets: func(p *domain.WorkoutPlan) []any {
		return []any{&p.Date, &p.Title, &p.Tags, (*[]byte)(&p.Exercises), &p.IsCompleted}
	},
}

var entryTable = tableDef[domain.WorkoutEntry]{
	name:    "workout_entries",
	columns: []string{"entry_date", "exercise_id", "workout_type", "sets", "plan_id"},
	values: func(e *domain.WorkoutEntry) []any {
		return []any{dateOnly(e.Date), e.ExerciseID, e.WorkoutType, jsonArray(e.Sets), e.PlanID}
	},
	targets: func(e *domain.WorkoutEntry) []any {
		return []any{&e.Date, &e.ExerciseID, &e.WorkoutType, (*[]byte)(&e.Sets), &e.PlanID}
	},
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// jsonArray hands pgx raw bytes so jsonb columns store the client document verbatim.
func jsonArray(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("[]")
	}
	return []byte(raw)
}

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

func placeholders(start, count int) string {
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(out, ",")
}
