package e1000

import (
	"strconv"
	"time"

	"github.com/exos-labs/netkernel/internal/kerrors"
	"github.com/exos-labs/netkernel/platform"
)

// etherTypeOf reads the 802.3 EtherType field (offset 12-13) out of a raw
// Ethernet frame, for telemetry labeling only; frames too short to carry
// one are labeled "unknown" rather than rejected (decoding/validation is
// the protocol layer's job, not this counter's).
func etherTypeOf(frame []byte) string {
	if len(frame) < 14 {
		return "unknown"
	}
	return "0x" + strconv.FormatUint(uint64(frame[12])<<8|uint64(frame[13]), 16)
}

// Send copies frame into the buffer at slot TDT, programs the descriptor
// with CMD=EOP|IFCS|RS and cleared status, advances TDT modulo N, then
// waits for STA.DD with a bounded spin (spec.md §4.7 "Send"). Ring-full
// policy: if (TDT+1) mod N == TDH, the caller must back off — Send
// returns a NetTxFail error rather than block.
func (d *Device) Send(frame []byte) error {
	if len(frame) > BufferSize {
		return kerrors.New("e1000.Send", kerrors.BadParameter, "frame exceeds buffer size")
	}

	tail := d.txTail.Load()
	next := (tail + 1) % uint32(d.tx.count)
	if next == d.txHead.Load() {
		if d.telemetry != nil {
			d.telemetry.FramesDropped.WithLabelValues(d.device, "tx_ring_full").Inc()
		}
		return kerrors.NewDevice("e1000.Send", "e1000", kerrors.NetTxFail, "TX ring full")
	}

	slot := int(tail)
	copy(d.tx.buffers[slot], frame)

	desc := txDescriptor{
		bufferAddr: d.tx.physAddrs[slot],
		length:     uint16(len(frame)),
		cmd:        txCmdEOP | txCmdIFCS | txCmdRS,
		status:     0,
	}
	desc.encode(d.tx.descriptorAt(slot))

	d.txTail.Store(next)
	d.regs.Write32(regTDT, next)

	deadline := platform.NewDeadline(100000, 1)
	for {
		got := decodeTXDescriptor(d.tx.descriptorAt(slot))
		if got.status&txStaDD != 0 {
			d.txHead.Store(next)
			if d.telemetry != nil {
				d.telemetry.FramesTX.WithLabelValues(d.device, etherTypeOf(frame)).Inc()
			}
			return nil
		}
		if deadline.Tick() {
			if d.telemetry != nil {
				d.telemetry.FramesDropped.WithLabelValues(d.device, "tx_timeout").Inc()
			}
			return kerrors.NewDevice("e1000.Send", "e1000", kerrors.NetTxFail, "TX descriptor-done spin timed out")
		}
	}
}

// pollBoundMultiplier gives "at most 2*N iterations" per spec.md §4.7
// "Receive poll".
const pollBoundMultiplier = 2

// pollEmptyChecks is how many consecutive not-yet-done descriptors Poll
// observes, pausing pollEmptySpin between them, before it returns.
const (
	pollEmptyChecks = 3
	pollEmptySpin   = 10 * time.Microsecond
)

// Poll starts at RxHead and, while the descriptor's STA.DD bit is set,
// invokes the RX callback for EOP descriptors, clears status, advances
// RDT to return the slot, and advances RxHead — terminating after at
// most 2*N iterations as a safety bound (spec.md §4.7 "Receive poll").
// A descriptor without STA.DD is re-checked after a short pause, and Poll
// returns once it has found the head slot empty three times in a row, so
// a late descriptor update is still picked up without spinning forever.
// Ring-full policy: if RDH==RDT the NIC silently drops; Poll simply finds
// nothing to do in that state, matching hardware behavior.
func (d *Device) Poll() {
	bound := pollBoundMultiplier * d.rx.count
	empty := 0
	for i := 0; i < bound; i++ {
		head := d.rxHead.Load()
		slot := int(head)
		desc := decodeRXDescriptor(d.rx.descriptorAt(slot))
		if desc.status&rxStaDD == 0 {
			empty++
			if empty >= pollEmptyChecks {
				return
			}
			platform.Sleep(pollEmptySpin)
			continue
		}
		empty = 0

		if desc.status&rxStaEOP != 0 {
			frame := d.rx.buffers[slot][:desc.length]
			if d.telemetry != nil {
				d.telemetry.FramesRX.WithLabelValues(d.device, etherTypeOf(frame)).Inc()
			}
			if d.rxCallback != nil {
				d.rxCallback(frame)
			}
		}

		desc.status = 0
		desc.encode(d.rx.descriptorAt(slot))

		d.rxTail.Store(head)
		d.regs.Write32(regRDT, head)
		d.rxHead.Store((head + 1) % uint32(d.rx.count))
	}
}

// deliverFrame is a test/simulation hook: it writes data into the RX ring
// slot at index and marks it descriptor-done, standing in for the NIC
// hardware DMA-ing a received frame into that slot before an interrupt or
// poll observes it.
func (d *Device) deliverFrame(index int, data []byte) {
	slot := index % d.rx.count
	copy(d.rx.buffers[slot], data)
	desc := decodeRXDescriptor(d.rx.descriptorAt(slot))
	desc.length = uint16(len(data))
	desc.status = rxStaDD | rxStaEOP
	desc.encode(d.rx.descriptorAt(slot))
}
