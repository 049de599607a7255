// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"
)

const (
	// HeaderLen is the size of the index/total header prepended to every packet.
	HeaderLen = 4

	// ChecksumLen is the size of the crc32 trailer appended to every transfer payload.
	ChecksumLen = 4

	// MaxPackets is the largest number of packets a single transfer may be split into.
	MaxPackets = math.MaxUint16

	// ForceAck is the ack value which aborts a transfer on both sides.
	ForceAck uint16 = 0xFFFF
)

var (
	ErrPacketTooShort     = errors.New("packet shorter than header")
	ErrInvalidPacketSize  = errors.New("max packet size must be greater than zero")
	ErrTooManyPackets     = errors.New("payload requires more packets than can be indexed")
	ErrMalformedAck       = errors.New("ack payload must be exactly two bytes")
	ErrMalformedTopicName = errors.New("topic is not a valid inbound topic")
)

// Header is the fixed header carried at the front of every data packet.
type Header struct {
	Index uint16 // zero-based position of the packet within the transfer
	Total uint16 // number of packets in the transfer
}

// DecodeHeader reads the index and total from the front of a packet.
func DecodeHeader(pk []byte) (Header, error) {
	if len(pk) < HeaderLen {
		return Header{}, ErrPacketTooShort
	}

	return Header{
		Index: binary.LittleEndian.Uint16(pk[0:2]),
		Total: binary.LittleEndian.Uint16(pk[2:4]),
	}, nil
}

// Encode writes the header into the first four bytes of dst.
func (h Header) Encode(dst []byte) {
	binary.LittleEndian.PutUint16(dst[0:2], h.Index)
	binary.LittleEndian.PutUint16(dst[2:4], h.Total)
}

// Checksum returns the crc32 (IEEE) of b.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Seal returns a copy of payload with its little-endian crc32 appended.
func Seal(payload []byte) []byte {
	out := make([]byte, len(payload), len(payload)+ChecksumLen)
	copy(out, payload)
	return binary.LittleEndian.AppendUint32(out, Checksum(payload))
}

// Verify reports whether the last four bytes of data are the crc32 of the rest.
func Verify(data []byte) bool {
	if len(data) < ChecksumLen {
		return false
	}

	body := data[:len(data)-ChecksumLen]
	return binary.LittleEndian.Uint32(data[len(body):]) == Checksum(body)
}

// Encode seals payload with a checksum and splits it into packets carrying at
// most maxPacketSize bytes each, not counting the header.
func Encode(payload []byte, maxPacketSize int) ([][]byte, error) {
	if maxPacketSize <= 0 {
		return nil, ErrInvalidPacketSize
	}

	data := Seal(payload)
	n := (len(data) + maxPacketSize - 1) / maxPacketSize
	if n > MaxPackets {
		return nil, ErrTooManyPackets
	}

	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		end := min((i+1)*maxPacketSize, len(data))
		pk := make([]byte, HeaderLen+end-i*maxPacketSize)
		Header{Index: uint16(i), Total: uint16(n)}.Encode(pk)
		copy(pk[HeaderLen:], data[i*maxPacketSize:end])
		out[i] = pk
	}

	return out, nil
}

// EncodeAck returns the two byte little-endian ack payload.
func EncodeAck(ack uint16) []byte {
	return binary.LittleEndian.AppendUint16(make([]byte, 0, 2), ack)
}

// DecodeAck reads an ack payload.
func DecodeAck(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, ErrMalformedAck
	}
	return binary.LittleEndian.Uint16(b), nil
}
