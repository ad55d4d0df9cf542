package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/edsonmichaque/durableq/pkg/queue/adapter"
)

func TestPublishInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      PublishInput
		wantErr bool
	}{
		{
			name:    "missing type",
			in:      PublishInput{Payload: map[string]interface{}{"a": 1}},
			wantErr: true,
		},
		{
			name:    "missing payload",
			in:      PublishInput{Type: "email"},
			wantErr: true,
		},
		{
			name:    "negative max_attempts",
			in:      PublishInput{Type: "email", Payload: map[string]interface{}{}, MaxAttempts: -1},
			wantErr: true,
		},
		{
			name:    "valid minimal input",
			in:      PublishInput{Type: "email", Payload: map[string]interface{}{"to": "u@e.com"}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, 3, tt.in.MaxAttempts)
			require.False(t, tt.in.ScheduledFor.IsZero())
		})
	}
}

func TestCompleteInputValidate(t *testing.T) {
	in := CompleteInput{}
	require.Error(t, in.Validate())

	in.JobID = uuid.New()
	require.NoError(t, in.Validate())
}

func TestFailInputValidate(t *testing.T) {
	in := FailInput{JobID: uuid.New()}
	require.Error(t, in.Validate())

	in.Error = "boom"
	require.NoError(t, in.Validate())
}

func TestValidateEnvelope(t *testing.T) {
	now := time.Now()
	worker := "worker-1"

	t.Run("nil envelope is fine", func(t *testing.T) {
		require.NoError(t, validateEnvelope(nil))
	})

	t.Run("zero job_id fails", func(t *testing.T) {
		env := &adapter.JobEnvelope{Type: "email", Status: adapter.StatusPending}
		require.Error(t, validateEnvelope(env))
	})

	t.Run("processing without worker_id fails", func(t *testing.T) {
		env := &adapter.JobEnvelope{JobID: uuid.New(), Type: "email", Status: adapter.StatusProcessing}
		require.Error(t, validateEnvelope(env))
	})

	t.Run("valid processing envelope", func(t *testing.T) {
		env := &adapter.JobEnvelope{
			JobID:     uuid.New(),
			Type:      "email",
			Status:    adapter.StatusProcessing,
			WorkerID:  &worker,
			StartedAt: &now,
		}
		require.NoError(t, validateEnvelope(env))
	})
}
