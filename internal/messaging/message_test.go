package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTaskMessage(t *testing.T) {
	t.Parallel()

	t.Run("valid body", func(t *testing.T) {
		t.Parallel()

		msg, err := DecodeTaskMessage([]byte(`{"task_id": 42}`))

		require.NoError(t, err)
		assert.Equal(t, int64(42), msg.TaskID)
	})

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeTaskMessage([]byte(`not json at all`))

		assert.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("missing task_id", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeTaskMessage([]byte(`{"wrong_field": 123}`))

		assert.ErrorIs(t, err, ErrMissingTaskID)
	})

	t.Run("zero task_id", func(t *testing.T) {
		t.Parallel()

		_, err := DecodeTaskMessage([]byte(`{"task_id": 0}`))

		assert.ErrorIs(t, err, ErrMissingTaskID)
	})
}

func TestTaskMessage_Encode(t *testing.T) {
	t.Parallel()

	body, err := TaskMessage{TaskID: 42}.Encode()

	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id": 42}`, string(body))
}

func TestMessageHeaders(t *testing.T) {
	t.Parallel()

	headers := messageHeaders()

	assert.Equal(t, ServiceName, headers["service"])
	assert.Equal(t, ServiceVersion, headers["version"])
	assert.EqualValues(t, 0, headers["retry_count"])
}
