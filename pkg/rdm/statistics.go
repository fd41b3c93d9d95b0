// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks packet statistics and error rates
type Statistics struct {
	mu sync.Mutex

	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets       uint64
	ValidPackets       uint64
	DiscoveryResponses uint64
	ChecksumErrors     uint64
	LengthErrors       uint64
	MalformedPackets   uint64
	AnomalousValues    uint64
	DecodeErrors       uint64
	Nacks              uint64
	Timeouts           uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a packet and its errors
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		var verr *ValidationError
		if !errors.As(decodeErr, &verr) {
			s.DecodeErrors++
			return
		}
		switch verr.Type {
		case AnomalyChecksum:
			s.ChecksumErrors++
		case AnomalyLength:
			s.LengthErrors++
			s.MalformedPackets++
		default:
			s.MalformedPackets++
		}
		return
	}

	if len(validationErrors) > 0 {
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyLength:
				s.LengthErrors++
				s.MalformedPackets++
			case AnomalyValue:
				s.AnomalousValues++
			default:
				s.MalformedPackets++
			}
		}
		return
	}

	s.ValidPackets++
	if packet == nil {
		return
	}
	if packet.IsDiscoveryResponse() {
		s.DiscoveryResponses++
	} else if _, ok := packet.NackReason(); ok && packet.IsResponse() {
		s.Nacks++
	}
}

// RecordTimeout counts a request that got no reply.
func (s *Statistics) RecordTimeout() {
	s.mu.Lock()
	s.Timeouts++
	s.LastUpdateTime = time.Now()
	s.mu.Unlock()
}

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.ChecksumErrors + s.DecodeErrors + s.MalformedPackets + s.AnomalousValues
}

// Errors returns the number of packets that failed to decode or validate.
func (s *Statistics) Errors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount()
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	percent := func(n uint64) float64 {
		if s.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, percent(s.ValidPackets))

	if s.DiscoveryResponses > 0 {
		result += fmt.Sprintf("  Discovery:        %5d\n", s.DiscoveryResponses)
	}
	if s.Nacks > 0 {
		result += fmt.Sprintf("  NACK:             %5d\n", s.Nacks)
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.MalformedPackets > 0 {
		result += fmt.Sprintf("Malformed Pkts:  %8d (%.1f%%)\n", s.MalformedPackets, percent(s.MalformedPackets))
		if s.LengthErrors > 0 {
			result += fmt.Sprintf("  Length Mismatch:  %5d\n", s.LengthErrors)
		}
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d (%.1f%%)\n", s.AnomalousValues, percent(s.AnomalousValues))
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalPackets = 0
	s.ValidPackets = 0
	s.DiscoveryResponses = 0
	s.ChecksumErrors = 0
	s.LengthErrors = 0
	s.MalformedPackets = 0
	s.AnomalousValues = 0
	s.DecodeErrors = 0
	s.Nacks = 0
	s.Timeouts = 0
	s.PacketRate = 0
	s.ErrorRate = 0
}
