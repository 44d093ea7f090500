package ata

import (
	"github.com/exos-labs/netkernel/internal/driverabi"
	"github.com/exos-labs/netkernel/internal/kerrors"
)

// Name satisfies internal/device.Driver.
func (d *Disk) Name() string { return "ata" }

// diskReadParam/diskWriteParam are the DFDiskRead/DFDiskWrite parameter
// shapes at the Command boundary, since Go has no variadic void* call.
type diskReadParam struct{ LBA uint64 }
type diskWriteParam struct {
	LBA  uint64
	Data Sector
}

// Command implements the driver dispatch ABI (spec.md §6) for the
// storage driver function codes (DF_DISK_READ/WRITE/GETINFO/SETACCESS).
// Internal callers use ReadSector/WriteSector/GetInfo/SetAccess directly.
func (d *Disk) Command(fn driverabi.FunctionID, param any) (any, error) {
	switch fn {
	case driverabi.DFLoad, driverabi.DFUnload, driverabi.DFProbe:
		return nil, nil
	case driverabi.DFGetVersion:
		return driverabi.Version, nil
	case driverabi.DFDiskRead:
		p, ok := param.(diskReadParam)
		if !ok {
			return nil, kerrors.New("ata.Command", kerrors.BadParameter, "DFDiskRead requires diskReadParam")
		}
		return d.ReadSector(p.LBA)
	case driverabi.DFDiskWrite:
		p, ok := param.(diskWriteParam)
		if !ok {
			return nil, kerrors.New("ata.Command", kerrors.BadParameter, "DFDiskWrite requires diskWriteParam")
		}
		return nil, d.WriteSector(p.LBA, p.Data)
	case driverabi.DFDiskGetInfo:
		return d.GetInfo(), nil
	case driverabi.DFDiskSetAccess:
		access, ok := param.(Access)
		if !ok {
			return nil, kerrors.New("ata.Command", kerrors.BadParameter, "DFDiskSetAccess requires an Access")
		}
		d.SetAccess(access)
		return nil, nil
	default:
		return nil, kerrors.New("ata.Command", kerrors.NotImplemented, "unsupported function id")
	}
}
