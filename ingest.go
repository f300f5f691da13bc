package pyrowave

import (
	"github.com/pyrowave/pyrowave/bitstream"
)

// PushPacket feeds one wire packet into the decoder. A packet is a
// sequence of 8-byte-headed records: an extended START_OF_FRAME header
// and/or block packets, all carrying the same sequence number.
//
// Stale sequences are dropped silently and duplicates skipped with a
// warning. A record that fails validation returns an error and is not
// staged; records before it in the same packet stay staged, and a block
// record from a newer sequence resets the frame state before its own
// checks run.
func (d *Decoder) PushPacket(data []byte) error {
	for len(data) >= bitstream.HeaderSize {
		if bitstream.IsExtended(data) {
			var seq bitstream.SequenceHeader
			seq.Unpack(data)

			if stale, restart := d.sequenceDelta(uint32(seq.Sequence)); stale {
				d.log.Warn("backwards sequence, discarding packet",
					"sequence", seq.Sequence, "last", d.lastSeq)
				return nil
			} else if restart {
				d.clearSequence()
				d.lastSeq = uint32(seq.Sequence)
			}

			if seq.Code != bitstream.ExtendedCodeStartOfFrame {
				return errMalformedf("unrecognized sequence header code %d", seq.Code)
			}
			if int(seq.WidthMinus1)+1 != d.width || int(seq.HeightMinus1)+1 != d.height {
				return errMalformedf("dimension mismatch in sequence header, (%d, %d) != (%d, %d)",
					seq.WidthMinus1+1, seq.HeightMinus1+1, d.width, d.height)
			}
			if seq.ChromaResolution != chromaResolutionCode(d.cfg.Chroma) {
				return errMalformedf("chroma mismatch in sequence header")
			}

			if stale, restart := d.sequenceDelta(uint32(seq.Sequence)); stale {
				d.log.Warn("backwards sequence, discarding packet",
					"sequence", seq.Sequence, "last", d.lastSeq)
				return nil
			} else if restart {
				d.clearSequence()
				d.lastSeq = uint32(seq.Sequence)
			}

			d.totalBlocks = int(seq.TotalBlocks)
			data = data[bitstream.HeaderSize:]
			continue
		}

		var header bitstream.BlockHeader
		header.Unpack(data)

		packetSize := int(header.PayloadWords) * 4
		if packetSize < bitstream.HeaderSize || packetSize > len(data) {
			return errMalformedf("block packet declares %d bytes, %d left to parse", packetSize, len(data))
		}

		if stale, restart := d.sequenceDelta(uint32(header.Sequence)); stale {
			d.log.Warn("backwards sequence, discarding packet",
				"sequence", header.Sequence, "last", d.lastSeq)
			return nil
		} else if restart {
			d.clearSequence()
			d.lastSeq = uint32(header.Sequence)
		}

		if header.BlockIndex >= uint32(d.blockCount32) {
			return errMalformedf("block index %d is out of bounds (>= %d)", header.BlockIndex, d.blockCount32)
		}

		if err := d.stageBlock(&header, data[:packetSize]); err != nil {
			return err
		}

		data = data[packetSize:]
	}

	if len(data) != 0 {
		return errMalformedf("%d trailing bytes in packet", len(data))
	}
	return nil
}

// sequenceDelta applies the 3-bit wrap-around ordering rule: deltas in
// (4, 7] are the past (stale), deltas 1..4 adopt the newer sequence and
// delta 0 keeps the current one.
func (d *Decoder) sequenceDelta(seq uint32) (stale, restart bool) {
	if d.lastSeq == missingBlock {
		return false, true
	}
	diff := (seq - d.lastSeq) & bitstream.SequenceMask
	if diff > (bitstream.SequenceMask+1)/2 {
		return true, false
	}
	return false, diff != 0
}

// stageBlock validates one block packet and appends it to the frame's
// payload staging.
func (d *Decoder) stageBlock(header *bitstream.BlockHeader, packet []byte) error {
	if d.dequantOffset[header.BlockIndex] != missingBlock {
		d.log.Warn("block is already decoded, skipping", "block", header.BlockIndex)
		return nil
	}

	if err := d.walkBlockPayload(header, packet); err != nil {
		return err
	}

	d.dequantOffset[header.BlockIndex] = uint32(len(d.payload))
	d.payload = append(d.payload, packet...)
	d.decodedBlocks++
	return nil
}
