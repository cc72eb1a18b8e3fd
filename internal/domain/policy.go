package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var errRequiredOnCreate = errors.New("required for new records")

// Absent name, muscle group and equipment keep the stored value; absent notes and
// personal best are cleared, so clients must resend them on every change. New
// exercises default to an empty name and the Full Body group.
var exercisePolicy = policy[Exercise, ExercisePayload]{
	kind:                KindExercise,
	tieBreakOnTimestamp: true,
	create: func(p ExercisePayload, _ time.Time) (Exercise, error) {
		ex := Exercise{
			MuscleGroup:  MuscleGroupFullBody,
			Notes:        p.Notes,
			PersonalBest: p.PersonalBest,
		}
		if p.Name != nil {
			ex.Name = *p.Name
		}
		if p.MuscleGroup != nil {
			ex.MuscleGroup = *p.MuscleGroup
		}
		if p.Equipment != nil {
			ex.Equipment = *p.Equipment
		}
		return ex, nil
	},
	apply: func(ex *Exercise, p ExercisePayload) {
		if p.Name != nil {
			ex.Name = *p.Name
		}
		if p.MuscleGroup != nil {
			ex.MuscleGroup = *p.MuscleGroup
		}
		if p.Equipment != nil {
			ex.Equipment = *p.Equipment
		}
		ex.Notes = p.Notes
		ex.PersonalBest = p.PersonalBest
	},
}

// is_completed falls back to false when absent. New plans without a date land on today.
var planPolicy = policy[WorkoutPlan, PlanPayload]{
	kind: KindWorkoutPlan,
	create: func(p PlanPayload, now time.Time) (WorkoutPlan, error) {
		plan := WorkoutPlan{
			Date:        dateOr(p.Date, now),
			Tags:        []string{},
			Exercises:   emptyArray(),
			IsCompleted: p.IsCompleted,
		}
		if p.Title != nil {
			plan.Title = *p.Title
		}
		if p.Tags != nil {
			plan.Tags = append([]string{}, (*p.Tags)...)
		}
		if p.Exercises != nil {
			plan.Exercises = p.Exercises
		}
		return plan, nil
	},
	apply: func(plan *WorkoutPlan, p PlanPayload) {
		if p.Date != nil {
			plan.Date = *p.Date
		}
		if p.Title != nil {
			plan.Title = *p.Title
		}
		if p.Tags != nil {
			plan.Tags = append([]string{}, (*p.Tags)...)
		}
		if p.Exercises != nil {
			plan.Exercises = p.Exercises
		}
		plan.IsCompleted = p.IsCompleted
	},
}

// plan_id falls back to null when absent. exercise_id is the only field a new entry must carry.
var entryPolicy = policy[WorkoutEntry, EntryPayload]{
	kind: KindWorkoutEntry,
	create: func(p EntryPayload, now time.Time) (WorkoutEntry, error) {
		if p.ExerciseID == nil || *p.ExerciseID == "" {
			return WorkoutEntry{}, &ValidationError{Kind: KindWorkoutEntry, ID: p.ID, Field: "exercise_id", Err: errRequiredOnCreate}
		}
		entry := WorkoutEntry{
			Date:       dateOr(p.Date, now),
			ExerciseID: *p.ExerciseID,
			Sets:       emptyArray(),
			PlanID:     p.PlanID,
		}
		if p.WorkoutType != nil {
			entry.WorkoutType = *p.WorkoutType
		}
		if p.Sets != nil {
			entry.Sets = p.Sets
		}
		return entry, nil
	},
	apply: func(entry *WorkoutEntry, p EntryPayload) {
		if p.Date != nil {
			entry.Date = *p.Date
		}
		if p.ExerciseID != nil {
			entry.ExerciseID = *p.ExerciseID
		}
		if p.WorkoutType != nil {
			entry.WorkoutType = *p.WorkoutType
		}
		if p.Sets != nil {
			entry.Sets = p.Sets
		}
		entry.PlanID = p.PlanID
	},
}

// dateOr returns the client date, or the calendar day of now in UTC.
func dateOr(date *time.Time, now time.Time) time.Time {
	if date != nil {
		return *date
	}
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func emptyArray() json.RawMessage {
	return json.RawMessage("[]")
}
