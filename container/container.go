// Package container implements the PYROWAVE file envelope: an 8-byte
// magic, eight little-endian i32 stream parameters, then a sequence of
// length-prefixed wire packets.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic opens every container file.
const Magic = "PYROWAVE"

// maxPacketSize bounds a single length-prefixed packet when reading.
const maxPacketSize = 64 << 20

// Params are the stream parameters following the magic.
type Params struct {
	Width        int32
	Height       int32
	YUVFormat    int32
	Chroma       int32
	IsFullRange  int32
	FrameRateNum int32
	FrameRateDen int32
	Siting       int32
}

// WriteHeader emits the magic and parameter block.
func WriteHeader(w io.Writer, p Params) error {
	if _, err := io.WriteString(w, Magic); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, &p)
}

// ReadHeader parses the magic and parameter block.
func ReadHeader(r io.Reader) (Params, error) {
	var p Params

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return p, fmt.Errorf("failed to read magic: %w", err)
	}
	if string(magic) != Magic {
		return p, errors.New("invalid container magic")
	}

	if err := binary.Read(r, binary.LittleEndian, &p); err != nil {
		return p, fmt.Errorf("failed to read stream parameters: %w", err)
	}
	return p, nil
}

// WritePacket emits one length-prefixed wire packet.
func WritePacket(w io.Writer, packet []byte) error {
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(packet)))
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	_, err := w.Write(packet)
	return err
}

// ReadPacket reads the next length-prefixed packet, reusing buf when it
// is large enough. Returns io.EOF at a clean end of stream.
func ReadPacket(r io.Reader, buf []byte) ([]byte, error) {
	var sizeBytes [4]byte
	if _, err := io.ReadFull(r, sizeBytes[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read packet size: %w", err)
	}

	size := binary.LittleEndian.Uint32(sizeBytes[:])
	if size > maxPacketSize {
		return nil, fmt.Errorf("packet of %d bytes exceeds the sanity bound", size)
	}

	if cap(buf) < int(size) {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("short packet: %w", err)
	}
	return buf, nil
}
