package protocol

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Node is one frame in a decoded message tree.
type Node struct {
	Tag    byte
	Offset int // payload offset in the inspected buffer
	Length int

	// Children is set when the payload is exactly a sequence of frames.
	// Otherwise Data holds the raw payload, aliasing the inspected buffer.
	Children []*Node
	Data     []byte
}

// Inspect walks the message viewed by r and returns its frame tree.
//
// Frames carry no type information, so a payload is treated as nested
// frames when it parses exactly as a sequence of complete frames, and as
// opaque bytes otherwise. Scalar fields can therefore be mistaken for
// frames; the tree is a debugging aid, not a decoder. Nesting deeper than
// maxDepth fails with ErrMaxDepthExceeded; maxDepth <= 0 selects
// MaxFrameDepth. The read head of r is not moved.
func Inspect(r *Reader, maxDepth int) (*Node, error) {
	view, err := OpenReaderTagged(r.buf, r.offset, r.length, r.tag)
	if err != nil {
		return nil, err
	}
	defer view.Recycle()
	return inspect(view, newDepthContext(maxDepth))
}

func inspect(r *Reader, dc *depthContext) (*Node, error) {
	n := &Node{Tag: r.Tag(), Offset: r.Offset(), Length: r.Len()}

	payload := r.Payload()
	if _, ok := SplitFrames(payload); !ok {
		n.Data = payload
		return n, nil
	}

	if err := dc.enter(); err != nil {
		return nil, err
	}
	defer dc.leave()

	for r.Remaining() > 0 {
		child, err := r.ReadMessage()
		if err != nil {
			return nil, err
		}
		cn, err := inspect(child, dc)
		child.Recycle()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, cn)
	}
	return n, nil
}

// Count returns the number of frames in the tree, including n.
func (n *Node) Count() int {
	c := 1
	for _, ch := range n.Children {
		c += ch.Count()
	}
	return c
}

// Format writes an indented, human-readable dump of the tree to w.
// Payloads longer than maxData bytes are abbreviated; maxData <= 0 prints
// them in full.
func (n *Node) Format(w io.Writer, maxData int) error {
	return n.format(w, 0, maxData)
}

func (n *Node) format(w io.Writer, depth, maxData int) error {
	indent := strings.Repeat("  ", depth)
	if n.Children != nil {
		if _, err := fmt.Fprintf(w, "%s[tag %d] len=%d @%d (%d frames)\n",
			indent, n.Tag, n.Length, n.Offset, len(n.Children)); err != nil {
			return err
		}
		for _, ch := range n.Children {
			if err := ch.format(w, depth+1, maxData); err != nil {
				return err
			}
		}
		return nil
	}

	data := n.Data
	suffix := ""
	if maxData > 0 && len(data) > maxData {
		data = data[:maxData]
		suffix = fmt.Sprintf("... (+%d bytes)", len(n.Data)-maxData)
	}
	_, err := fmt.Fprintf(w, "%s[tag %d] len=%d @%d %s%s\n",
		indent, n.Tag, n.Length, n.Offset, hex.EncodeToString(data), suffix)
	return err
}
