package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Header
		wantErr error
	}{
		{
			name:    "hello",
			payload: `{"type":"env-hello","env_list":["nqos_split","custom"]}`,
			want:    Header{Type: TypeHello, EnvList: []string{"nqos_split", "custom"}},
		},
		{
			name:    "start with opaque config",
			payload: `{"type":"env-start","env":"nqos_split","env_config":{"steps":10}}`,
			want:    Header{Type: TypeStart, Env: "nqos_split"},
		},
		{
			name:    "error",
			payload: `{"type":"env-error","error_msg":"crash"}`,
			want:    Header{Type: TypeError, ErrorMsg: "crash"},
		},
		{
			name:    "error with structured error_msg",
			payload: `{"type":"env-error","error_msg":{"code":7}}`,
			want:    Header{Type: TypeError, ErrorMsg: `{"code":7}`},
		},
		{
			name:    "measurement ignores env and env_list",
			payload: `{"type":"env-measurement","env":{"id":3},"env_list":"x","error_msg":1}`,
			want:    Header{Type: TypeMeasurement},
		},
		{
			name:    "action ignores numeric env",
			payload: `{"type":"env-action","env":7}`,
			want:    Header{Type: TypeAction},
		},
		{name: "start with non-string env", payload: `{"type":"env-start","env":7}`, wantErr: ErrInvalidField},
		{name: "hello with non-list env_list", payload: `{"type":"env-hello","env_list":"custom"}`, wantErr: ErrInvalidField},
		{name: "not json", payload: `hello`, wantErr: ErrNotJSON},
		{name: "array", payload: `[1,2]`, wantErr: ErrNotJSON},
		{name: "no type", payload: `{"env":"x"}`, wantErr: ErrMissingType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Decode([]byte(tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, h)
		})
	}
}

func TestErrorPayload(t *testing.T) {
	h, err := Decode(ErrorPayload("Worker Restarted, Try Again."))
	require.NoError(t, err)
	assert.Equal(t, TypeError, h.Type)
	assert.Equal(t, "Worker Restarted, Try Again.", h.ErrorMsg)
}

func TestNoAvailableWorkerPayload(t *testing.T) {
	var empty map[string]any
	require.NoError(t, json.Unmarshal(NoAvailableWorkerPayload("nqos_split", nil), &empty))
	assert.Equal(t, "no-available-worker", empty["type"])
	assert.Equal(t, []any{}, empty["available_workers"])

	var listed struct {
		AvailableWorkers []IdleWorker `json:"available_workers"`
	}
	payload := NoAvailableWorkerPayload("x", []IdleWorker{{Worker: "official-0-a", EnvList: []string{"nqos_split"}}})
	require.NoError(t, json.Unmarshal(payload, &listed))
	assert.Equal(t, []IdleWorker{{Worker: "official-0-a", EnvList: []string{"nqos_split"}}}, listed.AvailableWorkers)
}

func TestTypeKnown(t *testing.T) {
	assert.True(t, TypeMeasurement.Known())
	assert.False(t, Type("env-reset").Known())
}
