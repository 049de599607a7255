// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package selftest

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/mochi-mqtt/fixeddata/packets"
)

// PacketSize is the packet size used by every scripted case.
const PacketSize = 8

var testData = []byte("TestData")

// encode builds packets for n repetitions of word. The scripted payloads are
// far below the packet limit so encoding cannot fail.
func encode(word []byte, n int) [][]byte {
	pks, err := packets.Encode(bytes.Repeat(word, n), PacketSize)
	if err != nil {
		panic(err)
	}
	return pks
}

// Cases returns the scripted conformance cases in the order they are run.
func Cases() []Case {
	return []Case{
		normal(),
		skipAndReset(),
		skipAndContinue(),
		earlyRestart(),
		changeLength(),
		duplicate(),
		checksumError(),
		forceAck(),
	}
}

func normal() Case {
	data := encode(testData, 4)
	return Case{
		Title: "normal",
		Stages: []Stage{
			{Packets: data, ExpectedAck: uint16(len(data))},
		},
	}
}

func skipAndReset() Case {
	first := slices.Delete(encode(testData, 4), 2, 3)
	second := encode(testData, 6)
	return Case{
		Title: "skip and reset",
		Stages: []Stage{
			{Packets: first, ExpectedAck: 2},
			{Packets: second, ExpectedAck: uint16(len(second))},
		},
	}
}

func skipAndContinue() Case {
	data := encode(testData, 4)
	first := [][]byte{data[0], data[1], data[4]}
	return Case{
		Title: "skip and continue",
		Stages: []Stage{
			{Packets: first, ExpectedAck: 2},
			{Packets: data[2:], ExpectedAck: uint16(len(data))},
		},
	}
}

func earlyRestart() Case {
	abandoned := encode(testData, 4)
	restart := encode(testData, 3)
	return Case{
		Title: "early restart",
		Stages: []Stage{
			{Packets: append(abandoned[:2:2], restart...), ExpectedAck: uint16(len(restart))},
		},
	}
}

func changeLength() Case {
	short := encode(testData, 4)
	long := encode(testData, 6)
	short[2] = long[2]
	return Case{
		Title: "change length",
		Stages: []Stage{
			{Packets: short, ExpectedAck: 0},
			{Packets: long, ExpectedAck: uint16(len(long))},
		},
	}
}

func duplicate() Case {
	data := encode(testData, 5)
	dup := append(data[:2:2], data[1:]...)
	return Case{
		Title: "duplicate",
		Stages: []Stage{
			{Packets: dup, ExpectedAck: uint16(len(data))},
		},
	}
}

func checksumError() Case {
	data := encode(testData, 5)
	data[2] = encode([]byte("blabla12"), 5)[2]
	return Case{
		Title: "checksum error",
		Stages: []Stage{
			{Packets: data, ExpectedAck: 0},
		},
	}
}

// forceAck runs the receiver's retry budget down across the stages. It
// expects the budget left over from checksumError.
func forceAck() Case {
	bad := encode(testData, 2)
	binary.LittleEndian.PutUint32(bad[1][4:], 0xDEAD)
	binary.LittleEndian.PutUint32(bad[2][4:], 0xC0DE)
	good := encode(testData, 2)
	n := uint16(len(good))

	return Case{
		Title: "force ack",
		Stages: []Stage{
			{Packets: bad, ExpectedAck: 0},
			{Packets: bad, ExpectedAck: 0},
			{Packets: bad, ExpectedAck: 0},
			{Packets: good, ExpectedAck: n},
			{Packets: bad, ExpectedAck: 0},
			{Packets: bad, ExpectedAck: 0},
			{Packets: bad, ExpectedAck: 0},
			{Packets: bad, ExpectedAck: 0},
			{Packets: bad, ExpectedAck: packets.ForceAck},
			{Packets: good, ExpectedAck: n},
		},
	}
}
