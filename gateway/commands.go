package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/protocol"
)

// buildWrite assembles a W command from this gateway to dst, encoding the
// payload through the registry.
func (gw *Gateway) buildWrite(src, dst frame.Address, code frame.Code, args map[string]any) (protocol.Command, error) {
	payloadHex, err := gw.registry.Encode(code, args)
	if err != nil {
		return protocol.Command{}, &protocol.CommandInvalid{Msg: err.Error()}
	}
	f := frame.Frame{
		Verb:    frame.VerbWrite,
		Addrs:   [3]frame.Address{src, dst, frame.AddrBroadcast},
		Code:    code,
		Length:  len(payloadHex) / 2,
		Payload: strings.ToUpper(payloadHex),
	}
	cmd, err := protocol.NewCommand(f)
	if err != nil {
		return protocol.Command{}, &protocol.CommandInvalid{Msg: err.Error()}
	}
	return cmd, nil
}

// SetDhwMode switches ctl's stored-hot-water zone on or off. A non-nil
// until makes the override TEMPORARY (reverting at that time); nil makes it
// a permanent override.
func (gw *Gateway) SetDhwMode(ctx context.Context, ctl frame.Address, active bool, until *time.Time) (frame.Packet, error) {
	args := map[string]any{"active": active}
	if until != nil {
		args["until"] = *until
	} else {
		args["permanent"] = true
	}
	cmd, err := gw.buildWrite(gw.HGI(), ctl, "1F41", args)
	if err != nil {
		return frame.Packet{}, err
	}
	return gw.SendCmd(ctx, cmd, SendOptions{Priority: protocol.PriorityHigh, Qos: protocol.DefaultQos()})
}

// SetFanParam writes an HVAC ventilator's 2411 parameter. The command must
// originate from a remote the fan trusts, so the fan device needs at least
// one bound REM/DIS (see Device.AddBoundDevice); the first bound remote is
// used as the sender.
func (gw *Gateway) SetFanParam(ctx context.Context, fan frame.Address, paramID string, value float64) (frame.Packet, error) {
	d, ok := gw.factory.Get(fan)
	if !ok {
		return frame.Packet{}, &protocol.CommandInvalid{Msg: fmt.Sprintf("unknown fan device %s", fan)}
	}
	rems := d.GetBoundRem()
	if len(rems) == 0 {
		return frame.Packet{}, &protocol.CommandInvalid{Msg: fmt.Sprintf("fan %s has no bound REM/DIS to send from", fan)}
	}

	if len(paramID) < 4 {
		paramID = strings.Repeat("0", 4-len(paramID)) + paramID
	}
	cmd, err := gw.buildWrite(rems[0], fan, "2411", map[string]any{
		"param_id": strings.ToUpper(paramID),
		"value":    value,
	})
	if err != nil {
		return frame.Packet{}, err
	}
	return gw.SendCmd(ctx, cmd, SendOptions{Priority: protocol.PriorityHigh, Qos: protocol.DefaultQos()})
}
