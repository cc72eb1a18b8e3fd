package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityKind names one of the synchronized collections.
type EntityKind string

const (
	KindExercise     EntityKind = "exercise"
	KindWorkoutPlan  EntityKind = "workout_plan"
	KindWorkoutEntry EntityKind = "workout_entry"
)

// SyncMeta carries the bookkeeping fields shared by every synchronized entity.
type SyncMeta struct {
	ID                   string
	UserID               string
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
	IsDeleted            bool
	DeletedAt            *time.Time
	LastModifiedByDevice string
}

// Meta exposes the embedded metadata to generic code.
func (m *SyncMeta) Meta() *SyncMeta { return m }

// Entity is satisfied by pointers to Exercise, WorkoutPlan and WorkoutEntry.
type Entity[T any] interface {
	*T
	Meta() *SyncMeta
}

// MuscleGroup classifies an exercise.
type MuscleGroup string

const (
	MuscleGroupChest     MuscleGroup = "Chest"
	MuscleGroupBack      MuscleGroup = "Back"
	MuscleGroupLegs      MuscleGroup = "Legs"
	MuscleGroupShoulders MuscleGroup = "Shoulders"
	MuscleGroupArms      MuscleGroup = "Arms"
	MuscleGroupCore      MuscleGroup = "Core"
	MuscleGroupFullBody  MuscleGroup = "Full Body"
	MuscleGroupCardio    MuscleGroup = "Cardio"
)

var muscleGroups = map[MuscleGroup]struct{}{
	MuscleGroupChest:     {},
	MuscleGroupBack:      {},
	MuscleGroupLegs:      {},
	MuscleGroupShoulders: {},
	MuscleGroupArms:      {},
	MuscleGroupCore:      {},
	MuscleGroupFullBody:  {},
	MuscleGroupCardio:    {},
}

// ParseMuscleGroup validates a muscle group label.
func ParseMuscleGroup(value string) (MuscleGroup, error) {
	group := MuscleGroup(value)
	if _, ok := muscleGroups[group]; !ok {
		return "", fmt.Errorf("unknown muscle group %q", value)
	}
	return group, nil
}

// Exercise is a user-defined movement tracked across workouts.
type Exercise struct {
	SyncMeta
	Name         string
	MuscleGroup  MuscleGroup
	Equipment    string
	Notes        *string
	PersonalBest *float64
}

// WorkoutPlan schedules a list of exercises on a calendar date.
type WorkoutPlan struct {
	SyncMeta
	Date        time.Time
	Title       string
	Tags        []string
	Exercises   json.RawMessage
	IsCompleted bool
}

// WorkoutEntry logs the sets performed for one exercise on a date.
type WorkoutEntry struct {
	SyncMeta
	Date        time.Time
	ExerciseID  string
	WorkoutType string
	Sets        json.RawMessage
	PlanID      *string
}

// ResolutionServerWins is the only resolution the engine records.
const ResolutionServerWins = "server_wins"

// Conflict reports a client record that lost against the server copy.
type Conflict struct {
	EntityType    EntityKind
	EntityID      string
	Resolution    string
	ServerVersion int
	ClientVersion int
}
