package protocol

import (
	"fmt"

	"github.com/ramses-go/ramses-go/frame"
)

// Command is a Frame to be transmitted, carrying its own tx_header (the
// header of the frame being sent) and optionally an rx_header (the header
// of the expected reply).
type Command struct {
	Frame     frame.Frame
	TxHeader  frame.Header
	RxHeader  frame.Header
	HasRxHdr  bool
}

// NewCommand derives a Command's tx/rx headers from f. Only RQ/W frames
// typically carry an rx_header; I and (by convention) some W frames that
// expect no reply should call NewCommandNoReply instead.
func NewCommand(f frame.Frame) (Command, error) {
	txHdr, err := f.Header()
	if err != nil {
		return Command{}, fmt.Errorf("command tx_header: %w", err)
	}
	cmd := Command{Frame: f, TxHeader: txHdr}
	if f.Verb == frame.VerbRequest || f.Verb == frame.VerbWrite {
		rxHdr, err := f.RxHeader()
		if err != nil {
			return Command{}, fmt.Errorf("command rx_header: %w", err)
		}
		cmd.RxHeader = rxHdr
		cmd.HasRxHdr = true
	}
	return cmd, nil
}

// NewCommandNoReply builds a Command that never awaits a reply, even if its
// verb would normally carry an rx_header (e.g. a fire-and-forget I frame).
func NewCommandNoReply(f frame.Frame) (Command, error) {
	txHdr, err := f.Header()
	if err != nil {
		return Command{}, fmt.Errorf("command tx_header: %w", err)
	}
	return Command{Frame: f, TxHeader: txHdr}, nil
}

func (c Command) String() string { return c.Frame.Format() }
