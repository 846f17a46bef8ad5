package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/msgwire/internal/errors"
	"github.com/vango-dev/msgwire/pkg/protocol"
	"github.com/vango-dev/msgwire/pkg/transport"
)

func sendCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <ws-url> <desc.json>",
		Short: "Send a message to a server and print the reply",
		Long: `Encode a JSON message description, send it as one datagram to a
msgwire websocket endpoint, and print the frame tree of the reply.

Examples:
  msgwire send ws://localhost:7350/ws msg.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSend(ctx, cmd.OutOrStdout(), args[0], args[1])
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Overall timeout")

	return cmd
}

func runSend(ctx context.Context, w io.Writer, url, descPath string) error {
	data, err := encodeFile(descPath, true)
	if err != nil {
		return err
	}

	conn, err := transport.Dial(ctx, url)
	if err != nil {
		return errors.New("E080").Wrap(err)
	}
	defer conn.Close()

	if err := conn.SendBytes(ctx, data); err != nil {
		return errors.New("E080").Wrap(err)
	}
	info(w, "Sent %d bytes", len(data))

	reply, err := conn.Receive(ctx)
	if err != nil {
		if stderrors.Is(err, transport.ErrUnexpectedMessageType) {
			return errors.New("E081").Wrap(err)
		}
		return errors.New("E080").Wrap(err)
	}
	defer reply.Recycle()

	payload := reply.Payload()
	info(w, "Received %d bytes", len(payload))
	fmt.Fprintln(w)
	return runInspect(w, payload, inspectOptions{
		datagram: true,
		depth:    protocol.MaxFrameDepth,
		maxData:  16,
	})
}
