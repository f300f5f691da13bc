package pyrowave

import (
	"encoding/binary"
	"math/bits"

	"github.com/pyrowave/pyrowave/bitstream"
)

// Packet locates one wire packet inside the packetized output buffer.
type Packet struct {
	Offset int
	Size   int
}

func readMeta(meta []byte, idx int) BlockPacketMeta {
	return BlockPacketMeta{
		OffsetU32: binary.LittleEndian.Uint32(meta[idx*BlockPacketMetaSize:]),
		NumWords:  binary.LittleEndian.Uint32(meta[idx*BlockPacketMetaSize+4:]),
	}
}

// ComputeNumPackets returns how many wire packets Packetize will emit
// for the given meta index at a packet boundary of mtu bytes.
func (e *Encoder) ComputeNumPackets(meta []byte, mtu int) int {
	if len(meta) < e.MetaRequiredSize() || mtu < bitstream.HeaderSize {
		return 0
	}

	numPackets := 0
	sizeInPacket := bitstream.HeaderSize

	for i := 0; i < e.blockCount32; i++ {
		packetSize := int(readMeta(meta, i).NumWords) * 4
		if packetSize == 0 {
			continue
		}

		if sizeInPacket+packetSize > mtu {
			sizeInPacket = 0
			numPackets++
		}
		sizeInPacket += packetSize
	}

	if sizeInPacket > 0 {
		numPackets++
	}
	return numPackets
}

// Packetize validates every block the encoder produced, prepends the
// frame sequence header and groups blocks into packets no larger than
// mtu bytes (single oversized blocks excepted). The packetized stream
// is written to out; the returned packets index into it.
func (e *Encoder) Packetize(mtu int, out []byte, meta, bitstreamBuf []byte) ([]Packet, error) {
	if mtu < bitstream.HeaderSize {
		return nil, errConfigf("packet boundary %d is below the header size", mtu)
	}
	if len(meta) < e.MetaRequiredSize() {
		return nil, errConfigf("meta buffer is %d bytes, need %d", len(meta), e.MetaRequiredSize())
	}

	numNonZero := 0
	for i := 0; i < e.blockCount32; i++ {
		if readMeta(meta, i).NumWords != 0 {
			numNonZero++
		}
	}

	for i := 0; i < e.blockCount32; i++ {
		if err := e.ValidateBlock(bitstreamBuf, meta, i); err != nil {
			return nil, err
		}
	}

	var packets []Packet

	seq := bitstream.SequenceHeader{
		WidthMinus1:      uint16(e.width - 1),
		HeightMinus1:     uint16(e.height - 1),
		Sequence:         uint8(e.sequence),
		TotalBlocks:      uint32(numNonZero),
		Code:             bitstream.ExtendedCodeStartOfFrame,
		ChromaResolution: chromaResolutionCode(e.cfg.Chroma),
	}
	applyColorMetadata(&seq, e.cfg.Metadata)

	if len(out) < bitstream.HeaderSize {
		return nil, errConfigf("output buffer too small for sequence header")
	}
	seq.Pack(out)
	outputOffset := bitstream.HeaderSize
	sizeInPacket := bitstream.HeaderSize
	packetOffset := 0

	for i := 0; i < e.blockCount32; i++ {
		m := readMeta(meta, i)
		packetSize := int(m.NumWords) * 4
		if packetSize == 0 {
			continue
		}

		if sizeInPacket+packetSize > mtu {
			packets = append(packets, Packet{Offset: packetOffset, Size: sizeInPacket})
			sizeInPacket = 0
			packetOffset = outputOffset
		}

		if outputOffset+packetSize > len(out) {
			return nil, errConfigf("output buffer is %d bytes, need at least %d", len(out), outputOffset+packetSize)
		}

		copy(out[outputOffset:], bitstreamBuf[m.OffsetU32*4:m.OffsetU32*4+uint32(packetSize)])
		outputOffset += packetSize
		sizeInPacket += packetSize
	}

	if sizeInPacket > 0 {
		packets = append(packets, Packet{Offset: packetOffset, Size: sizeInPacket})
	}

	return packets, nil
}

func chromaResolutionCode(c ChromaSubsampling) uint8 {
	if c == Chroma444 {
		return bitstream.ChromaResolution444
	}
	return bitstream.ChromaResolution420
}

func applyColorMetadata(seq *bitstream.SequenceHeader, md ColorMetadata) {
	seq.ColorPrimaries = md.Primaries & 1
	seq.TransferFunction = md.TransferFunction & 1
	seq.YCbCrTransform = md.YCbCrTransform & 1
	if !md.FullRange {
		seq.YCbCrRange = bitstream.YCbCrRangeLimited
	}
	if md.SitingLeft {
		seq.ChromaSiting = bitstream.ChromaSitingLeft
	}
}

// ValidateBlock structurally verifies one coarse block's packet against
// its meta entry and the session geometry. Empty blocks are valid.
func (e *Encoder) ValidateBlock(bitstreamBuf, meta []byte, blockIndex int) error {
	m := readMeta(meta, blockIndex)
	if m.NumWords == 0 {
		return nil
	}

	start := int(m.OffsetU32) * 4
	end := start + int(m.NumWords)*4
	if end > len(bitstreamBuf) {
		return errMalformedf("block %d: meta points past the bitstream buffer", blockIndex)
	}

	payload := bitstreamBuf[start:end]
	var header bitstream.BlockHeader
	header.Unpack(payload)

	if header.BlockIndex != uint32(blockIndex) {
		return errMalformedf("block index mismatch, header %d meta %d", header.BlockIndex, blockIndex)
	}
	if uint32(header.PayloadWords) != m.NumWords {
		return errMalformedf("block %d: payload words %d do not match meta %d", blockIndex, header.PayloadWords, m.NumWords)
	}

	return e.walkBlockPayload(&header, payload)
}

// walkBlockPayload checks ballot bounds, sub-mask bounds and the plane
// accounting of a block packet: the declared plane counts, the
// significance scan and the sign tally must land exactly on the padded
// payload length.
func (w *waveletBuffers) walkBlockPayload(header *bitstream.BlockHeader, payload []byte) error {
	blockIndex := int(header.BlockIndex)
	band := &w.bands[w.coarseBand[blockIndex]]
	mapping := &w.coarseToFine[blockIndex]

	numFine := bits.OnesCount16(header.Ballot)
	controlEnd := bitstream.HeaderSize + numFine*bitstream.ControlSize
	if controlEnd > len(payload) {
		return errMalformedf("block %d: payload words cannot hold %d control entries", blockIndex, numFine)
	}

	var ctrls [FinePerCoarse * FinePerCoarse]bitstream.Control
	var bounds [FinePerCoarse * FinePerCoarse]uint8
	ctrlOffset := bitstream.HeaderSize
	planeBytes := 0

	for bit := 0; bit < FinePerCoarse*FinePerCoarse; bit++ {
		if header.Ballot&(1<<bit) == 0 {
			continue
		}
		fx, fy := bit&3, bit>>2
		if fx >= mapping.BlockWidth8 || fy >= mapping.BlockHeight8 {
			return errMalformedf("block %d: ballot bit (%d, %d) is out of bounds (%d, %d)",
				blockIndex, fx, fy, mapping.BlockWidth8, mapping.BlockHeight8)
		}

		ctrl := bitstream.UnpackControl(payload[ctrlOffset:])
		ctrlOffset += bitstream.ControlSize

		fine := mapping.BlockOffset8 + fy*mapping.BlockStride8 + fx
		rel := fine - band.info.BlockOffset8
		wv, hv := fineBlockBounds(band, rel%band.info.BlockStride8, rel/band.info.BlockStride8)
		inBounds := subBlockInBoundsMask(wv, hv)

		for s := 0; s < 8; s++ {
			if inBounds&(1<<s) == 0 && ctrl.Extra(s) != 0 {
				return errMalformedf("block %d: sub-block %d is out of bounds but carries planes", blockIndex, s)
			}
			planeBytes += subPlaneCount(ctrl, inBounds, s)
		}

		ctrls[bit] = ctrl
		bounds[bit] = inBounds
	}

	// Second walk: count significant coefficients off the plane bytes.
	if controlEnd+planeBytes > len(payload) {
		return errMalformedf("block %d: plane bytes run past the payload", blockIndex)
	}

	planeOffset := controlEnd
	signBits := 0
	for bit := 0; bit < FinePerCoarse*FinePerCoarse; bit++ {
		if header.Ballot&(1<<bit) == 0 {
			continue
		}
		for s := 0; s < 8; s++ {
			planes := subPlaneCount(ctrls[bit], bounds[bit], s)
			if planes == 0 {
				continue
			}
			var sig uint8
			for p := 0; p < planes; p++ {
				sig |= payload[planeOffset]
				planeOffset++
			}
			signBits += bits.OnesCount8(sig)
		}
	}

	totalBytes := planeOffset + (signBits+7)/8
	wantWords := ceilDiv(totalBytes, 4)
	if wantWords != int(header.PayloadWords) {
		return errMalformedf("block %d: plane accounting gives %d words, header declares %d",
			blockIndex, wantWords, header.PayloadWords)
	}

	return nil
}

// subPlaneCount is the wire-side twin of planesForSub: the coded plane
// count of sub-block s given its control entry and in-bounds mask.
func subPlaneCount(ctrl bitstream.Control, inBounds uint8, s int) int {
	if inBounds&(1<<s) == 0 {
		return 0
	}
	extra := ctrl.Extra(s)
	if ctrl.QBits == 0 && extra == 0 {
		return 0
	}
	return int(ctrl.QBits) + extra
}
