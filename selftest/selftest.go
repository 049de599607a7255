// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package selftest drives a remote peer through scripted fixed data
// transfers and checks the acks it returns.
package selftest

import (
	"log/slog"
)

// Stage is a burst of packets and the ack the peer must answer with.
type Stage struct {
	Packets     [][]byte
	ExpectedAck uint16
}

// Case is an ordered list of stages which pass or fail together.
type Case struct {
	Title  string
	Stages []Stage
}

// Report is the outcome of a single case.
type Report struct {
	Title    string `json:"title"`
	Passed   bool   `json:"passed"`
	Stage    int    `json:"stage"`
	Expected uint16 `json:"expected"`
	Got      uint16 `json:"got"`
}

// SendFn publishes the packets of a stage to the peer.
type SendFn func(pks [][]byte)

// Suite runs cases one after another, sending each stage once the previous
// stage has been acked as expected.
type Suite struct {
	Log     *slog.Logger
	cases   []Case
	send    SendFn
	current int
	stage   int
	reports []Report
	done    bool
}

// NewSuite returns a suite for the given cases.
func NewSuite(cases []Case, send SendFn, log *slog.Logger) *Suite {
	if log == nil {
		log = slog.Default()
	}

	return &Suite{
		Log:   log,
		cases: cases,
		send:  send,
	}
}

// Start sends the first stage of the first case. It returns false if
// there was nothing to run.
func (s *Suite) Start() bool {
	if len(s.cases) == 0 {
		s.done = true
		return false
	}

	s.current, s.stage = 0, 0
	s.Log.Info("starting selftest case", "case", s.cases[0].Title)
	s.sendStage()
	return true
}

func (s *Suite) sendStage() {
	s.Log.Debug("publishing selftest stage", "case", s.cases[s.current].Title, "stage", s.stage)
	s.send(s.cases[s.current].Stages[s.stage].Packets)
}

// Ack applies an ack from the peer and returns true once the suite has
// finished, whether by passing every case or by a failure.
func (s *Suite) Ack(ack uint16) bool {
	if s.done || s.current >= len(s.cases) {
		s.done = true
		return true
	}

	c := s.cases[s.current]
	expected := c.Stages[s.stage].ExpectedAck
	if ack != expected {
		s.Log.Error("selftest case failed", "case", c.Title, "stage", s.stage, "expected", expected, "ack", ack)
		s.reports = append(s.reports, Report{Title: c.Title, Stage: s.stage, Expected: expected, Got: ack})
		s.done = true
		return true
	}

	s.stage++
	if s.stage < len(c.Stages) {
		s.sendStage()
		return false
	}

	s.Log.Info("selftest case passed", "case", c.Title)
	s.reports = append(s.reports, Report{Title: c.Title, Passed: true, Stage: s.stage - 1, Expected: expected, Got: ack})

	s.current++
	s.stage = 0
	if s.current >= len(s.cases) {
		s.done = true
		return true
	}

	s.Log.Info("starting selftest case", "case", s.cases[s.current].Title)
	s.sendStage()
	return false
}

// Done returns true once the suite has finished.
func (s *Suite) Done() bool {
	return s.done
}

// Passed returns true if every case has passed.
func (s *Suite) Passed() bool {
	if !s.done || len(s.reports) != len(s.cases) {
		return false
	}

	for _, r := range s.reports {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Reports returns the outcome of each case run so far.
func (s *Suite) Reports() []Report {
	return append([]Report(nil), s.reports...)
}
