package speech_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-retail-voice/pkg/speech"
	"github.com/teslashibe/go-retail-voice/pkg/stt"
	"github.com/teslashibe/go-retail-voice/pkg/tts"
)

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("configured", func(t *testing.T) {
		synth := tts.NewMock()
		c := speech.New(stt.NewMock("what categories do you have"), synth, nil)

		assert.True(t, c.Configured())
		text, err := c.Transcribe(ctx, []byte{1, 2}, stt.TranscriptionConfig{})
		require.NoError(t, err)
		assert.Equal(t, "what categories do you have", text)

		res, err := c.Synthesize(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, "audio/mpeg", res.MIMEType)
		require.NoError(t, c.Health(ctx))
		require.NoError(t, c.Close())
		assert.Equal(t, 1, synth.CallCount("Close"))
	})

	t.Run("no synthesis credential", func(t *testing.T) {
		c := speech.New(stt.NewMock("x"), nil, nil)
		assert.False(t, c.Configured())
		_, err := c.Synthesize(ctx, "hello")
		assert.ErrorIs(t, err, speech.ErrNotConfigured)
		assert.ErrorIs(t, c.Health(ctx), speech.ErrNotConfigured)
	})

	t.Run("liveness failure", func(t *testing.T) {
		down := errors.New("connection refused")
		c := speech.New(nil, tts.WithError(down), nil)
		assert.True(t, c.Configured())
		assert.ErrorIs(t, c.Health(ctx), down)
		_, err := c.Transcribe(ctx, []byte{1}, stt.TranscriptionConfig{})
		assert.ErrorIs(t, err, stt.ErrUnavailable)
	})
}
