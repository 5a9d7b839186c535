package gateway

import (
	"context"
	"time"

	"github.com/ramses-go/ramses-go/frame"
	"github.com/ramses-go/ramses-go/index"
	"github.com/ramses-go/ramses-go/protocol"
)

// discoveryInterval is how often the background loop re-checks the
// known_list for devices it hasn't yet queried for basic device info.
const discoveryInterval = 5 * time.Minute

// discoveryLoop periodically requests 10E0 (device info) from every
// known_list address the index hasn't seen an RP|10E0 from yet. It exits
// when ctx is cancelled (Stop).
func (gw *Gateway) discoveryLoop(ctx context.Context) {
	defer gw.wg.Done()

	gw.pollUnknownDevices(ctx)
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			gw.pollUnknownDevices(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (gw *Gateway) pollUnknownDevices(ctx context.Context) {
	for addr := range gw.cfg.KnownList {
		if gw.idx.Contains(index.And(index.BySrc(addr), index.ByCode("10E0"), index.ByVerb(frame.VerbReply))) {
			continue
		}
		gw.requestDeviceInfo(ctx, addr)
	}
}

func (gw *Gateway) requestDeviceInfo(ctx context.Context, addr frame.Address) {
	f := frame.Frame{
		Verb:    frame.VerbRequest,
		Addrs:   [3]frame.Address{gw.HGI(), addr, frame.AddrBroadcast},
		Code:    "10E0",
		Length:  1,
		Payload: "00",
	}
	cmd, err := protocol.NewCommand(f)
	if err != nil {
		gw.logger.Debug("discovery: failed to build 10E0 request", "addr", addr, "err", err)
		return
	}
	if _, err := gw.SendCmd(ctx, cmd, SendOptions{Priority: protocol.PriorityLow, Qos: protocol.DefaultQos()}); err != nil {
		gw.logger.Debug("discovery: 10E0 request failed", "addr", addr, "err", err)
	}
}
