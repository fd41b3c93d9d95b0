// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomUID(rng *rand.Rand) UID {
	return UIDFromUint64(uint64(rng.Int63()) & 0xFFFFFFFFFFFF)
}

func randomPacket(rng *rand.Rand) *Packet {
	classes := []uint8{CommandDiscovery, CommandGet, CommandSet, CommandGetResponse, CommandSetResponse}
	p := &Packet{
		Destination:       randomUID(rng),
		Source:            randomUID(rng),
		TransactionNumber: uint8(rng.Intn(256)),
		PortID:            uint8(rng.Intn(256)),
		MessageCount:      uint8(rng.Intn(256)),
		SubDevice:         uint16(rng.Intn(65536)),
		CommandClass:      classes[rng.Intn(len(classes))],
		PID:               uint16(rng.Intn(65536)),
	}
	if n := rng.Intn(MaxPDL + 1); n > 0 {
		p.Data = make([]byte, n)
		rng.Read(p.Data)
	}
	return p
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

func TestFuzz_PacketRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		p := randomPacket(rng)
		b, err := p.Encode()
		if err != nil {
			t.Fatalf("round %d: Encode: %v", i, err)
		}
		got, err := DecodePacket(b)
		if err != nil {
			t.Fatalf("round %d: DecodePacket: %v", i, err)
		}
		if got.Destination != p.Destination || got.Source != p.Source ||
			got.TransactionNumber != p.TransactionNumber || got.PID != p.PID ||
			got.SubDevice != p.SubDevice || !bytes.Equal(got.Data, p.Data) {
			t.Fatalf("round %d: mismatch\n got  %+v\n want %+v", i, got, p)
		}
	}
}

func TestFuzz_DiscoveryResponseRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		u := randomUID(rng)
		b := EncodeDiscoveryResponse(u)
		skip := rng.Intn(DiscoveryPreambleMax + 1)
		got, err := DecodeDiscoveryResponse(b[skip:])
		if err != nil {
			t.Fatalf("round %d: %s: %v", i, u, err)
		}
		if got != u {
			t.Fatalf("round %d: expected %s, got %s", i, u, got)
		}
	}
}

func TestFuzz_DecoderRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	d := NewDecoder()

	for i := 0; i < rounds; i++ {
		if rng.Intn(8) == 0 {
			d.Break()
		}
		chunk := make([]byte, rng.Intn(64))
		rng.Read(chunk)
		if rng.Intn(4) == 0 && len(chunk) > 0 {
			chunk[0] = StartCodeRDM
		}
		for _, b := range chunk {
			p, err := d.DecodeByte(b)
			if p != nil && err != nil {
				t.Fatalf("round %d: packet and error returned together", i)
			}
		}
		if len(d.RawBytes()) > MaxPacketSize {
			t.Fatalf("round %d: buffer grew to %d bytes", i, len(d.RawBytes()))
		}
	}
}

func TestFuzz_DecoderStreamOfPackets(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	d := NewDecoder()

	for i := 0; i < rounds; i++ {
		p := randomPacket(rng)
		b, err := p.Encode()
		if err != nil {
			t.Fatalf("round %d: Encode: %v", i, err)
		}
		d.Break()
		var got *Packet
		for _, c := range b {
			pkt, err := d.DecodeByte(c)
			if err != nil {
				t.Fatalf("round %d: %v", i, err)
			}
			if pkt != nil {
				got = pkt
			}
		}
		if got == nil || got.PID != p.PID || !bytes.Equal(got.Data, p.Data) {
			t.Fatalf("round %d: packet not reassembled", i)
		}
	}
}
