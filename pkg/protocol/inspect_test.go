package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectTree(t *testing.T) {
	w := NewWriter()
	defer w.Recycle()

	w.StartMessage(1)
	w.StartMessage(2)
	w.WriteString("HO")
	require.NoError(t, w.EndMessage())
	w.StartMessage(3)
	w.StartMessage(4)
	w.WriteByte(0xAB)
	require.NoError(t, w.EndMessage())
	require.NoError(t, w.EndMessage())
	require.NoError(t, w.EndMessage())

	data, err := w.Finalize(true)
	require.NoError(t, err)

	r, err := OpenReader(data, 0)
	require.NoError(t, err)
	defer r.Recycle()

	node, err := Inspect(r, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Position(), "Inspect must not move the read head")

	require.Len(t, node.Children, 2)
	assert.Equal(t, byte(1), node.Tag)
	assert.Equal(t, byte(2), node.Children[0].Tag)
	assert.Equal(t, []byte{0x02, 'H', 'O'}, node.Children[0].Data)
	require.Len(t, node.Children[1].Children, 1)
	assert.Equal(t, []byte{0xAB}, node.Children[1].Children[0].Data)
	assert.Equal(t, 4, node.Count())

	var out bytes.Buffer
	require.NoError(t, node.Format(&out, 0))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "[tag 1] len=13 @3 (2 frames)", lines[0])
	assert.True(t, strings.HasPrefix(lines[3], "    [tag 4] len=1"))
	assert.True(t, strings.HasSuffix(lines[3], " ab"))
}

func TestInspectOpaquePayload(t *testing.T) {
	data := []byte{0x02, 0x00, 0x07, 0x01, 0x02}
	r, err := OpenReader(data, 0)
	require.NoError(t, err)
	defer r.Recycle()

	node, err := Inspect(r, 0)
	require.NoError(t, err)
	assert.Nil(t, node.Children)
	assert.Equal(t, []byte{0x01, 0x02}, node.Data)
}

func TestInspectDepthLimit(t *testing.T) {
	build := func(depth int) []byte {
		w := NewWriter()
		defer w.Recycle()
		for i := 0; i < depth; i++ {
			w.StartMessage(byte(i))
		}
		for i := 0; i < depth; i++ {
			require.NoError(t, w.EndMessage())
		}
		data, err := w.Finalize(true)
		require.NoError(t, err)
		return data
	}

	shallow := build(10)
	r, err := OpenReader(shallow, 0)
	require.NoError(t, err)
	node, err := Inspect(r, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, node.Count())
	r.Recycle()

	deep := build(MaxFrameDepth + 10)
	r, err = OpenReader(deep, 0)
	require.NoError(t, err)
	_, err = Inspect(r, 0)
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
	r.Recycle()
}

func TestFormatAbbreviatesData(t *testing.T) {
	n := &Node{Tag: 1, Length: 8, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	var out bytes.Buffer
	require.NoError(t, n.Format(&out, 2))
	assert.Equal(t, "[tag 1] len=8 @0 0102... (+6 bytes)\n", out.String())
}
