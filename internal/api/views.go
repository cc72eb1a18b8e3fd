package api

import (
	"encoding/json"
	"time"

	"github.com/qiuhuiming/titan-track/internal/domain"
)

// SyncResponse is the merged server state returned to the client.
type SyncResponse struct {
	ServerTime     time.Time          `json:"server_time"`
	Exercises      []ExerciseView     `json:"exercises"`
	WorkoutPlans   []WorkoutPlanView  `json:"workout_plans"`
	WorkoutEntries []WorkoutEntryView `json:"workout_entries"`
	Conflicts      []ConflictView     `json:"conflicts"`
}

// ExerciseView is the client representation of an exercise.
type ExerciseView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MuscleGroup  string    `json:"muscleGroup"`
	Equipment    string    `json:"equipment"`
	Notes        *string   `json:"notes"`
	PersonalBest *float64  `json:"personalBest"`
	Version      int       `json:"version"`
	UpdatedAt    time.Time `json:"updatedAt"`
	CreatedAt    time.Time `json:"createdAt"`
	IsDeleted    bool      `json:"isDeleted"`
}

// WorkoutPlanView is the client representation of a workout plan.
type WorkoutPlanView struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Title       string          `json:"title"`
	Tags        []string        `json:"tags"`
	Exercises   json.RawMessage `json:"exercises"`
	IsCompleted bool            `json:"isCompleted"`
	Version     int             `json:"version"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
	IsDeleted   bool            `json:"isDeleted"`
}

// WorkoutEntryView is the client representation of a workout entry.
type WorkoutEntryView struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	ExerciseID  string          `json:"exerciseId"`
	WorkoutType string          `json:"workoutType"`
	Sets        json.RawMessage `json:"sets"`
	PlanID      *string         `json:"planId"`
	Version     int             `json:"version"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
	IsDeleted   bool            `json:"isDeleted"`
}

// ConflictView reports a record where the server copy won.
type ConflictView struct {
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	Resolution    string `json:"resolution"`
	ServerVersion int    `json:"server_version"`
	ClientVersion int    `json:"client_version"`
}

func toSyncResponse(result *domain.Result) SyncResponse {
	resp := SyncResponse{
		ServerTime:     result.ServerTime.UTC(),
		Exercises:      make([]ExerciseView, 0, len(result.Exercises)),
		WorkoutPlans:   make([]WorkoutPlanView, 0, len(result.Plans)),
		WorkoutEntries: make([]WorkoutEntryView, 0, len(result.Entries)),
		Conflicts:      make([]ConflictView, 0, len(result.Conflicts)),
	}
	for _, e := range result.Exercises {
		resp.Exercises = append(resp.Exercises, toExerciseView(e))
	}
	for _, p := range result.Plans {
		resp.WorkoutPlans = append(resp.WorkoutPlans, toPlanView(p))
	}
	for _, e := range result.Entries {
		resp.WorkoutEntries = append(resp.WorkoutEntries, toEntryView(e))
	}
	for _, c := range result.Conflicts {
		resp.Conflicts = append(resp.Conflicts, ConflictView{
			EntityType:    string(c.EntityType),
			EntityID:      c.EntityID,
			Resolution:    c.Resolution,
			ServerVersion: c.ServerVersion,
			ClientVersion: c.ClientVersion,
		})
	}
	return resp
}

func toExerciseView(e domain.Exercise) ExerciseView {
	return ExerciseView{
		ID:           e.ID,
		Name:         e.Name,
		MuscleGroup:  string(e.MuscleGroup),
		Equipment:    e.Equipment,
		Notes:        e.Notes,
		PersonalBest: e.PersonalBest,
		Version:      e.Version,
		UpdatedAt:    e.UpdatedAt.UTC(),
		CreatedAt:    e.CreatedAt.UTC(),
		IsDeleted:    e.IsDeleted,
	}
}

func toPlanView(p domain.WorkoutPlan) WorkoutPlanView {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return WorkoutPlanView{
		ID:          p.ID,
		Date:        p.Date.Format(time.DateOnly),
		Title:       p.Title,
		Tags:        tags,
		Exercises:   arrayOrEmpty(p.Exercises),
		IsCompleted: p.IsCompleted,
		Version:     p.Version,
		UpdatedAt:   p.UpdatedAt.UTC(),
		CreatedAt:   p.CreatedAt.UTC(),
		IsDeleted:   p.IsDeleted,
	}
}

func toEntryView(e domain.WorkoutEntry) WorkoutEntryView {
	return WorkoutEntryView{
		ID:          e.ID,
		Date:        e.Date.Format(time.DateOnly),
		ExerciseID:  e.ExerciseID,
		WorkoutType: e.WorkoutType,
		Sets:        arrayOrEmpty(e.Sets),
		PlanID:      e.PlanID,
		Version:     e.Version,
		UpdatedAt:   e.UpdatedAt.UTC(),
		CreatedAt:   e.CreatedAt.UTC(),
		IsDeleted:   e.IsDeleted,
	}
}

func arrayOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("[]")
	}
	return raw
}
