package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/cloudseg/internal/orchestrator"
	"github.com/banshee-data/cloudseg/internal/testutil"
)

func TestGoalMessageKeepsResult(t *testing.T) {
	result := testutil.LineCloud(3, 4)
	result.Points = append(result.Points, testutil.NaNCloud(1, 4).Points...)
	st := orchestrator.GoalStatus{
		ID:           "g1",
		State:        orchestrator.GoalSucceeded,
		InputPoints:  4,
		InputSeq:     4,
		InputFrameID: "camera_color_optical_frame",
		ResultPoints: 4,
		AcceptedAt:   time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC),
		FinishedAt:   time.Date(2024, 3, 1, 12, 0, 2, 0, time.UTC),
		Result:       &result,
	}

	msg, err := GoalMessage(st)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", msg.GetFields()["state"].GetStringValue())
	assert.NotContains(t, msg.GetFields(), "diagnostic")

	got, err := GoalFromMessage(msg)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, 4, got.Result.Len())
	assert.False(t, got.Result.Points[3].IsFinite())
	assert.Equal(t, result.Points[:3], got.Result.Points[:3])

	got.Result, st.Result = nil, nil
	assert.Equal(t, st, got)
}

func TestGoalMessageRunning(t *testing.T) {
	st := orchestrator.GoalStatus{ID: "g2", State: orchestrator.GoalRunning, AcceptedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	msg, err := GoalMessage(st)
	require.NoError(t, err)
	assert.NotContains(t, msg.GetFields(), "finished_at")
	assert.NotContains(t, msg.GetFields(), "result")

	got, err := GoalFromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestGoalFromMessageErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
	}{
		{"unknown state", map[string]interface{}{"state": "paused"}},
		{"bad time", map[string]interface{}{"state": "running", "accepted_at": "yesterday"}},
		{"bad result encoding", map[string]interface{}{"state": "succeeded", "result": "%%%"}},
		{"bad result cloud", map[string]interface{}{"state": "succeeded", "result": []byte("junk")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)
			_, err = GoalFromMessage(msg)
			assert.Error(t, err)
		})
	}
}

func TestCloudFromMessageRejectsJunk(t *testing.T) {
	_, err := CloudFromMessage(wrapperspb.Bytes([]byte{1, 2, 3}))
	assert.Error(t, err)
	_, err = CloudFromMessage(nil)
	assert.Error(t, err)
}
