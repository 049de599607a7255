// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package selftest

import (
	"bytes"

	"github.com/mochi-mqtt/fixeddata/packets"
)

var (
	// ackTestAcks are the acks answered for each successive batch.
	ackTestAcks = []uint16{2, 0, packets.ForceAck}

	// ackTestCounts are the packet counts expected in each successive batch.
	ackTestCounts = []int{7, 5, 7}
)

// AckTestPayload returns the payload sent back to the peer once it has
// been force acked. It encodes to seven packets at PacketSize.
func AckTestPayload() []byte {
	return bytes.Repeat(testData, 6)
}

// AckTest checks that a peer's sender reacts to the acks it is given: a
// resume from packet 2, a restart from 0, then a force ack.
type AckTest struct {
	index int
	count int
}

// Packet counts an incoming packet. When the packet carries the final
// index, the ack to answer with is returned and ok is true.
func (a *AckTest) Packet(pk []byte) (ack uint16, ok bool, err error) {
	h, err := packets.DecodeHeader(pk)
	if err != nil {
		return 0, false, err
	}

	a.count++
	if int(h.Index) != int(h.Total)-1 {
		return 0, false, nil
	}

	if a.count == ackTestCounts[a.index] {
		ack = ackTestAcks[a.index]
		a.index = (a.index + 1) % len(ackTestAcks)
	} else {
		a.index = 0
		ack = 0
	}

	a.count = 0
	return ack, true, nil
}

// Phase returns the index of the next expected batch.
func (a *AckTest) Phase() int {
	return a.index
}
