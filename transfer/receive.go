// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transfer

import (
	"bytes"

	"github.com/mochi-mqtt/fixeddata/packets"
)

// Result is the outcome of feeding one packet to a ReceiveState.
type Result struct {
	Ack     uint16 // the ack value to publish, if HasAck
	HasAck  bool   // an ack must be published on the ack topic
	Payload []byte // the reassembled payload, set only on completion
	Fault   error  // the protocol fault observed, if any
}

// Complete reports whether the result carries a finished transfer.
func (r Result) Complete() bool {
	return r.Payload != nil
}

// ReceiveState reassembles one inbound transfer for a client topic.
type ReceiveState struct {
	total   int
	chunks  [][]byte
	retries retries
}

// NewReceiveState returns an empty receive state with a retry budget of max.
func NewReceiveState(max int) *ReceiveState {
	return &ReceiveState{
		retries: newRetries(max),
	}
}

// Received returns the number of packets accepted since the last clear.
func (s *ReceiveState) Received() int {
	return len(s.chunks)
}

// Total returns the recorded packet count of the transfer, or 0 if unknown.
func (s *ReceiveState) Total() int {
	return s.total
}

// Retries returns the remaining retry budget.
func (s *ReceiveState) Retries() int {
	return s.retries.remaining
}

// Clear drops all received chunks and the recorded total. The retry budget is kept.
func (s *ReceiveState) Clear() {
	s.total = 0
	s.chunks = nil
}

// ResetRetries refills the retry budget.
func (s *ReceiveState) ResetRetries() {
	s.retries.reset()
}

// failAck consumes a retry and returns ack, or ForceAck if the budget ran out.
func (s *ReceiveState) failAck(ack uint16) (uint16, error) {
	if s.retries.consume() {
		return ack, nil
	}
	return packets.ForceAck, ErrRetriesExhausted
}

// Receive processes a single packet. An error is returned only when the
// packet is too short to carry a header; protocol faults are reported in
// the result.
func (s *ReceiveState) Receive(pk []byte) (Result, error) {
	h, err := packets.DecodeHeader(pk)
	if err != nil {
		return Result{}, err
	}

	var res Result
	valid := true
	if int(h.Index) != len(s.chunks) {
		if h.Index != 0 {
			valid = false
			res.Fault = ErrOutOfOrder
		} else {
			s.Clear()
			if !s.retries.consume() {
				return Result{Ack: packets.ForceAck, HasAck: true, Fault: ErrRetriesExhausted}, nil
			}
		}
	}

	if h.Index == 0 {
		s.total = int(h.Total)
	} else if s.total != 0 && s.total != int(h.Total) {
		s.Clear()
		ack, err := s.failAck(0)
		if err == nil {
			err = ErrLengthChanged
		}
		return Result{Ack: ack, HasAck: true, Fault: err}, nil
	}

	if valid {
		s.chunks = append(s.chunks, bytes.Clone(pk[packets.HeaderLen:]))
	}

	if int(h.Index) != s.total-1 {
		return res, nil
	}

	res.HasAck = true
	if len(s.chunks) != s.total {
		ack, err := s.failAck(uint16(len(s.chunks)))
		res.Ack = ack
		res.Fault = ErrIncomplete
		if err != nil {
			res.Fault = err
		}
		return res, nil
	}

	data := bytes.Join(s.chunks, nil)
	n := len(s.chunks)
	s.Clear()

	if !packets.Verify(data) {
		ack, err := s.failAck(0)
		res.Ack = ack
		res.Fault = ErrChecksum
		if err != nil {
			res.Fault = err
		}
		return res, nil
	}

	s.ResetRetries()
	res.Ack = uint16(n)
	res.Fault = nil
	res.Payload = data[:len(data)-packets.ChecksumLen]
	return res, nil
}
