package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalStatusUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    FinalStatus
		wantErr bool
	}{
		{name: "ordinal success", payload: `0`, want: StatusSuccess},
		{name: "ordinal lost", payload: `2`, want: StatusLost},
		{name: "exact name", payload: `"Success"`, want: StatusSuccess},
		{name: "lowercase name", payload: `"timeout"`, want: StatusTimeout},
		{name: "uppercase name", payload: `"LOST"`, want: StatusLost},
		{name: "execution error name", payload: `"ExecutionError"`, want: StatusExecutionError},
		{name: "ordinal out of range", payload: `99`, wantErr: true},
		{name: "negative ordinal", payload: `-1`, wantErr: true},
		{name: "unknown name", payload: `"Exploded"`, wantErr: true},
		{name: "wrong type", payload: `{"status":0}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FinalStatus
			err := json.Unmarshal([]byte(tt.payload), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFinalStatusMarshalAlwaysName(t *testing.T) {
	data, err := json.Marshal(StatusLost)
	require.NoError(t, err)
	assert.Equal(t, `"Lost"`, string(data))

	_, err = json.Marshal(FinalStatus(42))
	assert.Error(t, err)
}

func TestFinalStatusInCompletionReport(t *testing.T) {
	// The sorter may send the status either way inside a full report.
	var byOrdinal, byName SortingCompleted
	require.NoError(t, json.Unmarshal(
		[]byte(`{"ParcelId":1001,"FinalStatus":2,"AffectedParcelIds":[1002,1003]}`), &byOrdinal))
	require.NoError(t, json.Unmarshal(
		[]byte(`{"ParcelId":1001,"FinalStatus":"lost"}`), &byName))

	assert.Equal(t, StatusLost, byOrdinal.FinalStatus)
	assert.Equal(t, StatusLost, byName.FinalStatus)
	assert.Equal(t, []int64{1002, 1003}, byOrdinal.AffectedParcelIds)
}

func TestParseFinalStatus(t *testing.T) {
	got, err := ParseFinalStatus("executionerror")
	require.NoError(t, err)
	assert.Equal(t, StatusExecutionError, got)

	_, err = ParseFinalStatus("")
	assert.Error(t, err)
}

func TestFinalStatusString(t *testing.T) {
	assert.Equal(t, "Success", StatusSuccess.String())
	assert.Equal(t, "FinalStatus(9)", FinalStatus(9).String())
	assert.False(t, FinalStatus(9).Valid())
}
