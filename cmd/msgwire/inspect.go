package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/msgwire/internal/capture"
	"github.com/vango-dev/msgwire/internal/errors"
	"github.com/vango-dev/msgwire/pkg/protocol"
)

type inspectOptions struct {
	hex        bool
	datagram   bool
	quarantine bool
	depth      int
	maxData    int
}

func inspectCmd() *cobra.Command {
	var opts inspectOptions

	cmd := &cobra.Command{
		Use:   "inspect [file|-]",
		Short: "Print the frame tree of a message",
		Long: `Print the frame tree of msgwire bytes read from a file or stdin.

By default the input must be a single top-level frame. With --datagram
the input is treated as a sequence of top-level frames, as carried by
one websocket message. Quarantined captures (*.bin.sz) are decompressed
with --quarantine.

Examples:
  msgwire inspect msg.bin
  msgwire encode msg.json | msgwire inspect --hex
  msgwire inspect --quarantine --datagram captures/20260101T...bin.sz`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			data, err := readInput(cmd.InOrStdin(), src, opts)
			if err != nil {
				return err
			}
			return runInspect(cmd.OutOrStdout(), data, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.hex, "hex", false, "Input is hexadecimal text")
	cmd.Flags().BoolVar(&opts.datagram, "datagram", false, "Input is a sequence of top-level frames")
	cmd.Flags().BoolVar(&opts.quarantine, "quarantine", false, "Input is a snappy-compressed quarantine capture")
	cmd.Flags().IntVar(&opts.depth, "depth", protocol.MaxFrameDepth, "Maximum nesting depth to descend")
	cmd.Flags().IntVar(&opts.maxData, "max-data", 16, "Leaf bytes shown per frame (0 for all)")

	return cmd
}

// readInput loads the bytes to inspect from a file, or stdin for "-".
func readInput(stdin io.Reader, src string, opts inspectOptions) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case src == "-":
		data, err = io.ReadAll(stdin)
		if err == nil && opts.quarantine {
			data, err = capture.Decode(data)
		}
	case opts.quarantine:
		data, err = capture.ReadFile(src)
	default:
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return nil, errors.Newf(errors.CategoryCLI, "Cannot read %s", src).Wrap(err)
	}

	if opts.hex {
		text := strings.Join(strings.Fields(string(data)), "")
		decoded, err := hex.DecodeString(text)
		if err != nil {
			return nil, errors.New("E141").Wrap(err)
		}
		data = decoded
	}
	return data, nil
}

func runInspect(w io.Writer, data []byte, opts inspectOptions) error {
	var (
		r   *protocol.Reader
		err error
	)
	if opts.datagram {
		r, err = protocol.OpenReaderLength(data, 0, len(data))
	} else {
		r, err = protocol.OpenReader(data, 0)
	}
	if err != nil {
		return errors.FromCodec(err).WithInput(data, 0)
	}
	defer r.Recycle()

	if !opts.datagram && r.Offset()+r.Len() < len(data) {
		return errors.New("E069").
			WithDetail(fmt.Sprintf("%d bytes follow the top-level frame", len(data)-r.Offset()-r.Len())).
			WithInput(data, r.Offset()+r.Len()).
			WithSuggestion("Use --datagram for input holding several top-level frames")
	}

	if opts.datagram {
		if off, err := walkFrames(data); err != nil {
			return errors.FromCodec(err).WithInput(data, off)
		}
	}

	node, err := protocol.Inspect(r, opts.depth)
	if err != nil {
		return errors.FromCodec(err)
	}

	var buf bytes.Buffer
	if err := node.Format(&buf, opts.maxData); err != nil {
		return err
	}
	fmt.Fprintf(&buf, "%d frames, %d bytes\n", node.Count(), len(data))
	_, err = w.Write(buf.Bytes())
	return err
}

// walkFrames reads the top-level frames of a datagram and returns the
// offset of the first one that fails to decode.
func walkFrames(data []byte) (int, error) {
	r, err := protocol.OpenReaderLength(data, 0, len(data))
	if err != nil {
		return 0, err
	}
	defer r.Recycle()

	for r.Remaining() > 0 {
		off := r.Position()
		msg, err := r.ReadMessage()
		if err != nil {
			return off, err
		}
		msg.Recycle()
	}
	return -1, nil
}
