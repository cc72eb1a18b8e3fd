package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qiuhuiming/titan-track/internal/domain"
)

func TestDecodeExercisePrefersSnakeCase(t *testing.T) {
	p, err := domain.DecodeExercise(json.RawMessage(`{
		"id": "e1",
		"version": 3,
		"name": "Pull Up",
		"muscle_group": "Back",
		"muscleGroup": "Arms",
		"personalBest": 12.5,
		"personal_best": null,
		"isDeleted": true,
		"updatedAt": "2025-02-01T10:30:00.123456Z"
	}`))
	require.NoError(t, err)
	require.Equal(t, "e1", p.ID)
	require.Equal(t, 3, p.Version)
	require.Equal(t, domain.MuscleGroupBack, *p.MuscleGroup)
	require.Equal(t, 12.5, *p.PersonalBest, "null snake_case falls back to camelCase")
	require.True(t, p.IsDeleted)
	require.Equal(t, time.Date(2025, time.February, 1, 10, 30, 0, 123456000, time.UTC), *p.UpdatedAt)
	require.Nil(t, p.Notes)
	require.Nil(t, p.Equipment)
}

func TestDecodeDefaults(t *testing.T) {
	p, err := domain.DecodePlan(json.RawMessage(`{"id":"p1","version":-4}`))
	require.NoError(t, err)
	require.Equal(t, 1, p.Version)
	require.Equal(t, -4, p.SentVersion)
	require.False(t, p.IsDeleted)
	require.False(t, p.IsCompleted)
	require.Nil(t, p.UpdatedAt)
	require.Nil(t, p.Date)
	require.Nil(t, p.Tags)
	require.Nil(t, p.Exercises)
}

func TestDecodeFlagsTrueWhenEitherSpellingIsTrue(t *testing.T) {
	p, err := domain.DecodePlan(json.RawMessage(`{"id":"p1","is_deleted":false,"isDeleted":true,"is_completed":true,"isCompleted":false}`))
	require.NoError(t, err)
	require.True(t, p.IsDeleted)
	require.True(t, p.IsCompleted)
	require.Equal(t, 1, p.SentVersion, "missing version reports as 1")

	p, err = domain.DecodePlan(json.RawMessage(`{"id":"p2","is_deleted":false,"isDeleted":null}`))
	require.NoError(t, err)
	require.False(t, p.IsDeleted)
}

func TestDecodeDatesTruncateToCalendarDay(t *testing.T) {
	p, err := domain.DecodeEntry(json.RawMessage(`{"id":"w1","date":"2025-04-09T23:59:00+02:00","exerciseId":"e1","workoutType":"strength","sets":[{"reps":8}],"planId":"p1"}`))
	require.NoError(t, err)
	require.Equal(t, "2025-04-09", p.Date.Format(time.DateOnly))
	require.Equal(t, "e1", *p.ExerciseID)
	require.Equal(t, "strength", *p.WorkoutType)
	require.JSONEq(t, `[{"reps":8}]`, string(p.Sets))
	require.Equal(t, "p1", *p.PlanID)
}

func TestDecodeValidationErrors(t *testing.T) {
	cases := []struct {
		name  string
		kind  string
		raw   string
		field string
	}{
		{name: "unknown muscle group", kind: "exercise", raw: `{"id":"e1","muscleGroup":"Toes"}`, field: "muscle_group"},
		{name: "bad version", kind: "exercise", raw: `{"id":"e1","version":"two"}`, field: "version"},
		{name: "bad timestamp", kind: "plan", raw: `{"id":"p1","updated_at":"yesterday"}`, field: "updated_at"},
		{name: "bad date", kind: "plan", raw: `{"id":"p1","date":"04/09/2025"}`, field: "date"},
		{name: "tags not strings", kind: "plan", raw: `{"id":"p1","tags":[1,2]}`, field: "tags"},
		{name: "sets not array", kind: "entry", raw: `{"id":"w1","sets":{"reps":5}}`, field: "sets"},
		{name: "flag not bool", kind: "entry", raw: `{"id":"w1","is_deleted":"yes"}`, field: "is_deleted"},
		{name: "not an object", kind: "entry", raw: `[1]`, field: "(object)"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			switch tc.kind {
			case "exercise":
				_, err = domain.DecodeExercise(json.RawMessage(tc.raw))
			case "plan":
				_, err = domain.DecodePlan(json.RawMessage(tc.raw))
			default:
				_, err = domain.DecodeEntry(json.RawMessage(tc.raw))
			}
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
			require.ErrorIs(t, err, domain.ErrInvalidPayload)
		})
	}
}

func TestDecodeBatchKeepsRecordsWithoutID(t *testing.T) {
	b, err := domain.DecodeBatch([]json.RawMessage{json.RawMessage(`{"name":"No id"}`)}, nil, nil)
	require.NoError(t, err)
	require.Len(t, b.Exercises, 1)
	require.Empty(t, b.Exercises[0].ID)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	for _, input := range []string{
		"2025-01-02T03:04:05Z",
		"2025-01-02T04:04:05+01:00",
		"2025-01-02T03:04:05",
		"2025-01-02 03:04:05",
	} {
		got, err := domain.ParseTimestamp(input)
		require.NoError(t, err, input)
		require.True(t, want.Equal(got), input)
	}
	_, err := domain.ParseTimestamp("2025-01-02")
	require.Error(t, err)
}
