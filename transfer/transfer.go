// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package transfer contains the receive and send state machines of the
// fixed data protocol. A state is owned by a single client worker and is
// not safe for concurrent use.
package transfer

import "errors"

// DefaultMaxRetries is the number of consecutive faults tolerated before a
// transfer is force-aborted.
const DefaultMaxRetries = 5

var (
	ErrOutOfOrder         = errors.New("unexpected packet index")
	ErrLengthChanged      = errors.New("total packets changed during transfer")
	ErrChecksum           = errors.New("transfer checksum mismatch")
	ErrIncomplete         = errors.New("transfer incomplete at final packet")
	ErrRetriesExhausted   = errors.New("max retries reached")
	ErrForceAck           = errors.New("transfer force acked by peer")
	ErrIllegalAck         = errors.New("ack exceeds transfer size")
	ErrTransferInProgress = errors.New("transfer already in progress")
	ErrTransferReplaced   = errors.New("transfer replaced before it finished")
)

// retries is a consecutive-fault budget which refills itself once exhausted.
type retries struct {
	max       int
	remaining int
}

func newRetries(max int) retries {
	if max <= 0 {
		max = DefaultMaxRetries
	}
	return retries{max: max, remaining: max}
}

// consume spends one retry, returning false and refilling the budget if it
// was the last one.
func (r *retries) consume() bool {
	r.remaining--
	if r.remaining <= 0 {
		r.remaining = r.max
		return false
	}
	return true
}

func (r *retries) reset() {
	r.remaining = r.max
}
