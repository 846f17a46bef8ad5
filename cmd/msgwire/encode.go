package main

import (
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/msgwire/internal/compose"
	"github.com/vango-dev/msgwire/internal/errors"
	"github.com/vango-dev/msgwire/pkg/protocol"
)

func encodeCmd() *cobra.Command {
	var (
		noHeader bool
		out      string
	)

	cmd := &cobra.Command{
		Use:   "encode <desc.json>",
		Short: "Encode a JSON message description",
		Long: `Encode a JSON message description into msgwire bytes.

The result is printed as hex, or written raw with --out. With
--no-header, a description holding a single message is encoded
without its 3-byte frame header.

Examples:
  msgwire encode msg.json
  msgwire encode msg.json --out msg.bin
  msgwire encode msg.json --no-header`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd.OutOrStdout(), args[0], !noHeader, out)
		},
	}

	cmd.Flags().BoolVar(&noHeader, "no-header", false, "Omit the frame header of a single top-level message")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write raw bytes to this file instead of printing hex")

	return cmd
}

func runEncode(w io.Writer, path string, includeHeader bool, out string) error {
	data, err := encodeFile(path, includeHeader)
	if err != nil {
		return err
	}
	if out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		success(w, "Wrote %d bytes to %s", len(data), out)
		return nil
	}
	fmt.Fprintln(w, hex.EncodeToString(data))
	return nil
}

// encodeFile encodes the description at path.
func encodeFile(path string, includeHeader bool) ([]byte, error) {
	dg, err := compose.ParseFile(path)
	if err != nil {
		return nil, describeError(path, err)
	}

	w := protocol.GetWriter(protocol.DefaultWriterCapacity)
	defer w.Recycle()

	if err := dg.Encode(w); err != nil {
		return nil, describeError(path, err)
	}
	data, err := w.Finalize(includeHeader)
	if err != nil {
		return nil, errors.FromCodec(err)
	}
	return data, nil
}

func describeError(path string, err error) error {
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return errors.Newf(errors.CategoryCLI, "Message description %s not found", path).Wrap(err)
	case stderrors.Is(err, compose.ErrInvalid):
		return errors.New("E140").Wrap(err).
			WithSuggestion(`Fields look like {"type": "int32", "value": 5}`)
	default:
		return errors.FromCodec(err)
	}
}
