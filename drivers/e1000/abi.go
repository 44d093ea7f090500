package e1000

import (
	"github.com/exos-labs/netkernel/internal/driverabi"
	"github.com/exos-labs/netkernel/internal/kerrors"
)

// Name satisfies internal/device.Driver, letting a *Device sit directly
// in a device.Device's Driver field.
func (d *Device) Name() string { return "e1000" }

// GetInfo is the DFNetGetInfo response: MAC and link state, the fields
// spec.md §4.10 step 3 ("query device MAC via driver GETINFO") and the
// supplemented link-status path need from outside the package.
type GetInfo struct {
	MAC  [6]byte
	Link LinkStatusInfo
}

// Command implements the driver dispatch ABI (spec.md §6, DESIGN NOTES
// §9) at the package boundary. Internal callers use Send/Poll/MAC/
// SetRXCallback directly; Command exists for callers that only have a
// driverabi.Driver handle.
func (d *Device) Command(fn driverabi.FunctionID, param any) (any, error) {
	switch fn {
	case driverabi.DFLoad, driverabi.DFUnload, driverabi.DFProbe:
		return nil, nil
	case driverabi.DFGetVersion:
		return driverabi.Version, nil
	case driverabi.DFNetReset:
		return nil, d.reset()
	case driverabi.DFNetGetInfo:
		return GetInfo{MAC: d.MAC(), Link: d.LinkStatus()}, nil
	case driverabi.DFNetSend:
		frame, ok := param.([]byte)
		if !ok {
			return nil, kerrors.New("e1000.Command", kerrors.BadParameter, "DFNetSend requires a []byte frame")
		}
		return nil, d.Send(frame)
	case driverabi.DFNetPoll:
		d.Poll()
		return nil, nil
	case driverabi.DFNetSetRXCB:
		cb, ok := param.(RXCallback)
		if !ok {
			return nil, kerrors.New("e1000.Command", kerrors.BadParameter, "DFNetSetRXCB requires an RXCallback")
		}
		d.SetRXCallback(cb)
		return nil, nil
	default:
		return nil, kerrors.New("e1000.Command", kerrors.NotImplemented, "unsupported function id")
	}
}
