package command

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	c, err := Decode([]byte(`{"target":"player:hero","attr":"speed","value":1.5}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1.5"), c.Value)
	kind, id, err := c.Split()
	require.NoError(t, err)
	assert.Equal(t, "player", kind)
	assert.Equal(t, "hero", id)

	c, err = Decode([]byte(`{"target":"input:ui/level","attr":"value","value":"3"}`))
	require.NoError(t, err)
	_, id, _ = c.Split()
	assert.Equal(t, "ui/level", id)

	c, err = Decode([]byte(`{"target":"canvas","attr":"fit","value":"cover"}`))
	require.NoError(t, err)
	kind, id, _ = c.Split()
	assert.Equal(t, "canvas", kind)
	assert.Empty(t, id)

	c, err = Decode([]byte(`{"target":"automation","attr":"start"}`))
	require.NoError(t, err)
	kind, _, _ = c.Split()
	assert.Equal(t, "automation", kind)
	assert.Nil(t, c.Value)
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode([]byte(`{"target":"player","attr":"speed"}`))
	assert.ErrorIs(t, err, ErrTarget)
	_, err = Decode([]byte(`{"target":":x","attr":"speed"}`))
	assert.ErrorIs(t, err, ErrTarget)
	_, err = Decode([]byte(`{"target":"player:a"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`nope`))
	assert.Error(t, err)
}

func TestReply(t *testing.T) {
	assert.Equal(t, Reply{OK: true}, ReplyTo(nil))
	assert.Equal(t, Reply{Error: "boom"}, ReplyTo(errors.New("boom")))
}
