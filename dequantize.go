package pyrowave

import (
	"github.com/pyrowave/pyrowave/bitstream"
)

// dequantize reverses the quantizer band by band: staged block packets
// are expanded into coefficients, missing blocks become zeros.
func (d *Decoder) dequantize() {
	for i := range d.bands {
		d.bands[i].coeffs.zero()
	}

	d.device.dispatchBlocks(d.blockCount32, func(start, end int) {
		for idx := start; idx < end; idx++ {
			off := d.dequantOffset[idx]
			if off == missingBlock {
				continue
			}
			d.dequantizeCoarseBlock(idx, d.payload[off:])
		}
	})
}

// dequantizeCoarseBlock expands one staged block packet. The payload
// was structurally validated at ingest, so the walk here trusts the
// declared plane counts.
func (d *Decoder) dequantizeCoarseBlock(idx int, payload []byte) {
	band := &d.bands[d.coarseBand[idx]]
	mapping := &d.coarseToFine[idx]

	var header bitstream.BlockHeader
	header.Unpack(payload)
	payload = payload[:int(header.PayloadWords)*4]

	step := bitstream.DecodeQuant(header.QuantCode)

	// Control entries and sub-block geometry per coded fine block.
	var ctrls [FinePerCoarse * FinePerCoarse]bitstream.Control
	var bounds [FinePerCoarse * FinePerCoarse]uint8
	ctrlOffset := bitstream.HeaderSize
	for bit := 0; bit < FinePerCoarse*FinePerCoarse; bit++ {
		if header.Ballot&(1<<bit) == 0 {
			continue
		}
		ctrls[bit] = bitstream.UnpackControl(payload[ctrlOffset:])
		ctrlOffset += bitstream.ControlSize

		fine := mapping.BlockOffset8 + (bit>>2)*mapping.BlockStride8 + bit&3
		rel := fine - band.info.BlockOffset8
		wv, hv := fineBlockBounds(band, rel%band.info.BlockStride8, rel/band.info.BlockStride8)
		bounds[bit] = subBlockInBoundsMask(wv, hv)
	}

	// Plane scan: rebuild magnitudes and the significance order.
	var mags [FinePerCoarse * FinePerCoarse][64]uint16
	type sigRef struct {
		bit   uint8
		coeff uint8
	}
	var order []sigRef

	planeOffset := ctrlOffset
	for bit := 0; bit < FinePerCoarse*FinePerCoarse; bit++ {
		if header.Ballot&(1<<bit) == 0 {
			continue
		}
		for s := 0; s < 8; s++ {
			planes := subPlaneCount(ctrls[bit], bounds[bit], s)
			if planes == 0 {
				continue
			}
			sx, sy := (s&1)*4, (s>>1)*2
			var seen uint8
			for p := planes - 1; p >= 0; p-- {
				b := payload[planeOffset]
				planeOffset++
				for i := 0; i < 8; i++ {
					if b&(1<<i) == 0 {
						continue
					}
					ci := (sy+(i>>2))*FineBlockSize + sx + (i & 3)
					mags[bit][ci] |= 1 << p
					if seen&(1<<i) == 0 {
						seen |= 1 << i
						order = append(order, sigRef{bit: uint8(bit), coeff: uint8(ci)})
					}
				}
			}
		}
	}

	// Sign bits in significance order.
	signs := bitstream.NewReader(payload[planeOffset:])
	var negative [FinePerCoarse * FinePerCoarse]uint64
	for _, ref := range order {
		if signs.ReadBits(1) != 0 {
			negative[ref.bit] |= 1 << ref.coeff
		}
	}

	// Reconstruct coefficients into the band plane.
	for bit := 0; bit < FinePerCoarse*FinePerCoarse; bit++ {
		if header.Ballot&(1<<bit) == 0 {
			continue
		}
		fine := mapping.BlockOffset8 + (bit>>2)*mapping.BlockStride8 + bit&3
		rel := fine - band.info.BlockOffset8
		bx, by := rel%band.info.BlockStride8, rel/band.info.BlockStride8
		wv, hv := fineBlockBounds(band, bx, by)

		drop := int(ctrls[bit].DropQ)
		for y := 0; y < hv; y++ {
			row := (by*FineBlockSize + y) * band.width
			for x := 0; x < wv; x++ {
				ci := y*FineBlockSize + x
				mag := int(mags[bit][ci])
				if mag == 0 {
					continue
				}
				v := mag << drop
				if drop > 0 {
					v += 1 << (drop - 1)
				}
				value := float32(v) * step
				if negative[bit]>>ci&1 != 0 {
					value = -value
				}
				band.coeffs.store(row+bx*FineBlockSize+x, value)
			}
		}
	}
}
