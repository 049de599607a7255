// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transfer

import "github.com/mochi-mqtt/fixeddata/packets"

// SendState tracks delivery of one outbound transfer for a client topic.
type SendState struct {
	packets [][]byte
	acked   int
	retries retries
}

// NewSendState returns a send state for an encoded transfer.
func NewSendState(pks [][]byte, max int) *SendState {
	return &SendState{
		packets: pks,
		retries: newRetries(max),
	}
}

// Packets returns all packets of the transfer.
func (s *SendState) Packets() [][]byte {
	return s.packets
}

// Total returns the number of packets in the transfer.
func (s *SendState) Total() int {
	return len(s.packets)
}

// Acked returns the number of packets the receiver has reported.
func (s *SendState) Acked() int {
	return s.acked
}

// SetAcked records a progress report from the receiver.
func (s *SendState) SetAcked(n int) {
	s.acked = n
}

// Finished returns true if the receiver has reported every packet.
func (s *SendState) Finished() bool {
	return s.acked == len(s.packets)
}

// Ack applies an ack from the receiver. If done is true the state is
// terminal and should be discarded; err then holds ErrForceAck or
// ErrIllegalAck for an abnormal end. Otherwise resend holds the packets to
// publish again, or err is ErrRetriesExhausted if the transfer was abandoned.
func (s *SendState) Ack(ack uint16) (resend [][]byte, done bool, err error) {
	total := len(s.packets)
	switch {
	case int(ack) == total:
		s.acked = total
		return nil, true, nil
	case int(ack) > total:
		if ack == packets.ForceAck {
			return nil, true, ErrForceAck
		}
		return nil, true, ErrIllegalAck
	}

	if !s.retries.consume() {
		return nil, false, ErrRetriesExhausted
	}

	s.acked = 0
	return s.packets[ack:], false, nil
}
