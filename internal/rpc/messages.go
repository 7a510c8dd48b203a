package rpc

import (
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/orchestrator"
)

// The service speaks protobuf well-known types. Clouds travel as a
// BytesValue holding the packed binary cloud format, which keeps
// non-finite coordinates intact. A goal travels as a Struct with the
// fields below; "result" holds the base64 packed cloud of a succeeded goal.
const (
	fieldID           = "id"
	fieldState        = "state"
	fieldDiagnostic   = "diagnostic"
	fieldInputPoints  = "input_points"
	fieldInputSeq     = "input_seq"
	fieldInputFrameID = "input_frame_id"
	fieldResultPoints = "result_points"
	fieldAcceptedAt   = "accepted_at"
	fieldFinishedAt   = "finished_at"
	fieldResult       = "result"
)

// CloudMessage packs c for the wire.
func CloudMessage(c cloud.Cloud) (*wrapperspb.BytesValue, error) {
	data, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(data), nil
}

// CloudFromMessage unpacks a cloud written by CloudMessage.
func CloudFromMessage(m *wrapperspb.BytesValue) (cloud.Cloud, error) {
	return cloud.Decode(m.GetValue())
}

// GoalMessage encodes st as a Struct.
func GoalMessage(st orchestrator.GoalStatus) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		fieldID:           st.ID,
		fieldState:        st.State.String(),
		fieldInputPoints:  st.InputPoints,
		fieldInputSeq:     st.InputSeq,
		fieldResultPoints: st.ResultPoints,
		fieldAcceptedAt:   st.AcceptedAt.Format(time.RFC3339Nano),
	}
	if st.Diagnostic != "" {
		fields[fieldDiagnostic] = st.Diagnostic
	}
	if st.InputFrameID != "" {
		fields[fieldInputFrameID] = st.InputFrameID
	}
	if !st.FinishedAt.IsZero() {
		fields[fieldFinishedAt] = st.FinishedAt.Format(time.RFC3339Nano)
	}
	if st.Result != nil {
		data, err := st.Result.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("goal %s result: %w", st.ID, err)
		}
		fields[fieldResult] = data
	}
	return structpb.NewStruct(fields)
}

// GoalFromMessage decodes a Struct written by GoalMessage.
func GoalFromMessage(m *structpb.Struct) (orchestrator.GoalStatus, error) {
	f := m.GetFields()
	st := orchestrator.GoalStatus{
		ID:           f[fieldID].GetStringValue(),
		Diagnostic:   f[fieldDiagnostic].GetStringValue(),
		InputPoints:  int(f[fieldInputPoints].GetNumberValue()),
		InputSeq:     uint32(f[fieldInputSeq].GetNumberValue()),
		InputFrameID: f[fieldInputFrameID].GetStringValue(),
		ResultPoints: int(f[fieldResultPoints].GetNumberValue()),
	}
	if err := st.State.UnmarshalText([]byte(f[fieldState].GetStringValue())); err != nil {
		return st, err
	}
	var err error
	if st.AcceptedAt, err = parseTime(f[fieldAcceptedAt]); err != nil {
		return st, fmt.Errorf("%s: %w", fieldAcceptedAt, err)
	}
	if st.FinishedAt, err = parseTime(f[fieldFinishedAt]); err != nil {
		return st, fmt.Errorf("%s: %w", fieldFinishedAt, err)
	}
	if v, ok := f[fieldResult]; ok {
		data, err := base64.StdEncoding.DecodeString(v.GetStringValue())
		if err != nil {
			return st, fmt.Errorf("%s: %w", fieldResult, err)
		}
		c, err := cloud.Decode(data)
		if err != nil {
			return st, fmt.Errorf("%s: %w", fieldResult, err)
		}
		st.Result = &c
	}
	return st, nil
}

func parseTime(v *structpb.Value) (time.Time, error) {
	s := v.GetStringValue()
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
