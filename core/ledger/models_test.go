package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLessonSet_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantIDs     []string
		wantLegacy  bool
		wantCount   int
		wantErr     bool
	}{
		{name: "set shape", data: `["l2","l1","l1"]`, wantIDs: []string{"l1", "l2"}},
		{name: "empty set", data: `[]`, wantIDs: []string{}},
		{name: "legacy count", data: `3`, wantLegacy: true, wantCount: 3},
		{name: "legacy zero", data: `0`, wantLegacy: true},
		{name: "null", data: `null`, wantIDs: []string{}},
		{name: "garbage", data: `"lol"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s LessonSet
			err := json.Unmarshal([]byte(tt.data), &s)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLegacy, s.IsLegacy())
			if tt.wantLegacy {
				assert.Equal(t, tt.wantCount, s.LegacyCount())
				return
			}
			assert.Equal(t, tt.wantIDs, s.IDs())
		})
	}
}

func TestLessonSet_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(NewLessonSet("b", "a"))
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, string(data))

	// zero value must serialize as an empty set, never null
	data, err = json.Marshal(LessonSet{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
}

func TestLessonSet_Add(t *testing.T) {
	s := NewLessonSet()
	assert.True(t, s.Add("l1"))
	assert.False(t, s.Add("l1"), "re-adding must be a no-op")
	assert.False(t, s.Add(""), "empty id must be rejected")
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains("l1"))
	assert.False(t, s.Contains("l2"))
}

func TestScore_Percent(t *testing.T) {
	tests := []struct {
		name  string
		score Score
		want  float64
	}{
		{name: "raw is a percentage", score: RawScore(85), want: 85},
		{name: "raw clamped high", score: RawScore(150), want: 100},
		{name: "raw clamped low", score: RawScore(-5), want: 0},
		{name: "detailed percentage wins", score: DetailedScore(1, 2, 75), want: 75},
		{name: "detailed derived from earned/total", score: DetailedScore(3, 4, 0), want: 75},
		{name: "detailed zero total", score: DetailedScore(3, 0, 0), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.score.Percent())
		})
	}
}

func TestScore_UnmarshalJSON(t *testing.T) {
	var s Score
	require.NoError(t, json.Unmarshal([]byte(`85.5`), &s))
	assert.False(t, s.Detailed)
	assert.Equal(t, 85.5, s.Raw)

	require.NoError(t, json.Unmarshal([]byte(`{"earned":18,"total":20,"percentage":90}`), &s))
	assert.True(t, s.Detailed)
	assert.Equal(t, float64(90), s.Percent())

	require.Error(t, json.Unmarshal([]byte(`"lol"`), &s))
}

func TestCompletionEvent_LogicalKey(t *testing.T) {
	lesson := CompletionEvent{Kind: EventLesson, LessonID: "l1"}
	part := CompletionEvent{Kind: EventPart, LessonID: "l1", PartIndex: 2}
	exam := CompletionEvent{Kind: EventExam, ExamID: "e1"}

	assert.Equal(t, "l1", lesson.LogicalKey())
	assert.Equal(t, "l1_part_2", part.LogicalKey())
	assert.Equal(t, "exam_e1", exam.LogicalKey())
}

func TestSortEventsByTimestamp(t *testing.T) {
	now := time.Now().UTC()
	events := []CompletionEvent{
		{ID: "c", Timestamp: now.Add(2 * time.Hour)},
		{ID: "a", Timestamp: now},
		{ID: "b", Timestamp: now.Add(time.Hour)},
	}
	SortEventsByTimestamp(events)
	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
	assert.Equal(t, "c", events[2].ID)
}
