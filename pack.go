package pyrowave

import (
	"encoding/binary"

	"github.com/pyrowave/pyrowave/bitstream"
)

// blockPacking emits one packet per non-empty coarse block using the
// plane-drops rate control chose, then lays the packets out in the
// bitstream buffer in global block order and fills the meta index.
func (e *Encoder) blockPacking(out *BitstreamBuffers) error {
	e.device.dispatchBlocks(e.blockCount32, func(start, end int) {
		for idx := start; idx < end; idx++ {
			e.blockData[idx] = e.packCoarseBlock(idx, e.blockData[idx][:0])
		}
	})

	offset := 0
	for idx := 0; idx < e.blockCount32; idx++ {
		data := e.blockData[idx]
		meta := BlockPacketMeta{}
		if len(data) > 0 {
			if offset+len(data) > len(out.Bitstream) {
				return errConfigf("bitstream buffer is %d bytes, need at least %d", len(out.Bitstream), offset+len(data))
			}
			copy(out.Bitstream[offset:], data)
			meta.OffsetU32 = uint32(offset / 4)
			meta.NumWords = uint32(len(data) / 4)
			offset += len(data)
		}
		binary.LittleEndian.PutUint32(out.Meta[idx*BlockPacketMetaSize:], meta.OffsetU32)
		binary.LittleEndian.PutUint32(out.Meta[idx*BlockPacketMetaSize+4:], meta.NumWords)
	}

	return nil
}

// packCoarseBlock serializes one coarse block at its chosen plane-drop.
// Returns nil when nothing in the block is significant.
func (e *Encoder) packCoarseBlock(idx int, buf []byte) []byte {
	band := &e.bands[e.coarseBand[idx]]
	mapping := &e.coarseToFine[idx]
	drop := int(e.quant[idx])

	// First walk: which fine blocks survive, and their coded shapes.
	var ballot uint16
	var shapes [FinePerCoarse * FinePerCoarse]fineAnalysis
	for fy := 0; fy < mapping.BlockHeight8; fy++ {
		for fx := 0; fx < mapping.BlockWidth8; fx++ {
			fine := mapping.BlockOffset8 + fy*mapping.BlockStride8 + fx
			rel := fine - band.info.BlockOffset8
			bx, by := rel%band.info.BlockStride8, rel/band.info.BlockStride8

			wv, hv := fineBlockBounds(band, bx, by)
			fa := analyzeFine(e.rawMag[fine*64:fine*64+64], wv, hv, drop)
			if fa.present {
				bit := fy*FinePerCoarse + fx
				ballot |= 1 << bit
				shapes[bit] = fa
			}
		}
	}
	if ballot == 0 {
		return nil
	}

	w := bitstream.NewWriter(buf)

	// Header placeholder; payload length patched after padding.
	var hdr [bitstream.HeaderSize]byte
	for range hdr {
		w.PutByte(0)
	}

	// Control entries.
	for bit := 0; bit < FinePerCoarse*FinePerCoarse; bit++ {
		if ballot&(1<<bit) == 0 {
			continue
		}
		ctrl := bitstream.Control{
			SubMask: shapes[bit].ctrl.subMask,
			QBits:   uint8(shapes[bit].ctrl.qBits),
			DropQ:   uint8(drop),
		}
		var cb [bitstream.ControlSize]byte
		ctrl.Pack(cb[:])
		w.PutByte(cb[0])
		w.PutByte(cb[1])
		w.PutByte(cb[2])
	}

	// Plane bytes then sign bits, both in ballot order.
	for bit := 0; bit < FinePerCoarse*FinePerCoarse; bit++ {
		if ballot&(1<<bit) == 0 {
			continue
		}
		fine := mapping.BlockOffset8 + (bit>>2)*mapping.BlockStride8 + bit&3
		e.packFinePlanes(w, fine, &shapes[bit], drop)
	}
	for bit := 0; bit < FinePerCoarse*FinePerCoarse; bit++ {
		if ballot&(1<<bit) == 0 {
			continue
		}
		fine := mapping.BlockOffset8 + (bit>>2)*mapping.BlockStride8 + bit&3
		e.packFineSigns(w, fine, &shapes[bit], drop)
	}

	w.AlignWord()
	buf = w.Bytes()

	header := bitstream.BlockHeader{
		Ballot:       ballot,
		PayloadWords: uint16(len(buf) / 4),
		Sequence:     uint8(e.sequence),
		QuantCode:    band.quantCode,
		BlockIndex:   uint32(idx),
	}
	header.Pack(buf)
	return buf
}

// packFinePlanes emits the significance plane bytes of one fine block:
// active sub-blocks in index order, planes from the top down, one byte
// per plane with bit i carrying coefficient i of the sub-block.
func (e *Encoder) packFinePlanes(w *bitstream.Writer, fine int, fa *fineAnalysis, drop int) {
	mags := e.rawMag[fine*64 : fine*64+64]

	for s := 0; s < 8; s++ {
		planes := planesForSub(fa, s)
		if planes == 0 {
			continue
		}
		sx, sy := (s&1)*4, (s>>1)*2
		for p := planes - 1; p >= 0; p-- {
			var b byte
			for i := 0; i < 8; i++ {
				mag := mags[(sy+(i>>2))*FineBlockSize+sx+(i&3)] >> drop
				if mag>>p&1 != 0 {
					b |= 1 << i
				}
			}
			w.PutByte(b)
		}
	}
}

// packFineSigns appends one sign bit per coefficient in the order the
// plane scan first finds each coefficient significant.
func (e *Encoder) packFineSigns(w *bitstream.Writer, fine int, fa *fineAnalysis, drop int) {
	mags := e.rawMag[fine*64 : fine*64+64]
	signs := e.rawSign[fine]

	for s := 0; s < 8; s++ {
		planes := planesForSub(fa, s)
		if planes == 0 {
			continue
		}
		sx, sy := (s&1)*4, (s>>1)*2
		var seen uint8
		for p := planes - 1; p >= 0; p-- {
			for i := 0; i < 8; i++ {
				if seen&(1<<i) != 0 {
					continue
				}
				ci := (sy+(i>>2))*FineBlockSize + sx + (i & 3)
				if mags[ci]>>drop>>p&1 != 0 {
					seen |= 1 << i
					if signs>>ci&1 != 0 {
						w.PutBits(1, 1)
					} else {
						w.PutBits(0, 1)
					}
				}
			}
		}
	}
}

// planesForSub returns the coded plane count of sub-block s under a
// fine analysis, zero for inactive or out-of-bounds sub-blocks.
func planesForSub(fa *fineAnalysis, s int) int {
	if fa.inBounds&(1<<s) == 0 {
		return 0
	}
	extra := int(fa.ctrl.subMask>>(2*s)) & 3
	if fa.ctrl.qBits == 0 && extra == 0 {
		return 0
	}
	return fa.ctrl.qBits + extra
}
