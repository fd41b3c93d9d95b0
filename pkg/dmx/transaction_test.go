// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dmx_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rdmctl/internal/busim"
	"github.com/Thermoquad/rdmctl/pkg/dmx"
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

var (
	devA = rdm.NewUID(0x6574, 0x00000010)
	devB = rdm.NewUID(0x6574, 0x00000020)
)

// requireResumed checks that the engine is back in continuous send with
// the line turned to output.
func requireResumed(t *testing.T, e *dmx.Engine, bus *busim.Bus) {
	t.Helper()
	require.Equal(t, dmx.TaskSend, e.Mode())
	require.True(t, bus.Output(), "direction pin must be back to output")
}

func TestSendDiscovery_SingleResponder(t *testing.T) {
	e, bus := newEngine(t, busim.NewDevice(devA))
	before := e.FramesSent()

	uid, err := e.SendDiscovery(rdm.ZeroUID, rdm.BroadcastAll)
	require.NoError(t, err)
	assert.Equal(t, devA, uid)
	requireResumed(t, e, bus)
	assert.Greater(t, e.FramesSent(), before, "a full frame follows every transaction")
	assert.Equal(t, uint64(1), e.Statistics().DiscoveryResponses)
}

func TestSendDiscovery_OutOfRange(t *testing.T) {
	e, bus := newEngine(t, busim.NewDevice(devA))

	_, err := e.SendDiscovery(rdm.NewUID(0x0001, 0), rdm.NewUID(0x0001, 0xFFFFFFFF))
	require.ErrorIs(t, err, rdm.ErrNoReply)
	assert.False(t, errors.Is(err, rdm.ErrMalformed), "silence is not a malformed reply")
	requireResumed(t, e, bus)
	assert.Equal(t, uint64(1), e.Statistics().Timeouts)
}

func TestSendDiscovery_Collision(t *testing.T) {
	e, bus := newEngine(t, busim.NewDevice(devA), busim.NewDevice(devB))

	_, err := e.SendDiscovery(rdm.ZeroUID, rdm.BroadcastAll)
	require.ErrorIs(t, err, rdm.ErrMalformed)
	require.ErrorIs(t, err, rdm.ErrNoReply)
	requireResumed(t, e, bus)
}

func TestSendDiscovery_CorruptChecksumRejected(t *testing.T) {
	e, bus := newEngine(t, busim.NewDevice(devA, busim.WithCorruptChecksum()))

	_, err := e.SendDiscovery(rdm.ZeroUID, rdm.BroadcastAll)
	require.ErrorIs(t, err, rdm.ErrMalformed)
	requireResumed(t, e, bus)
	assert.Equal(t, uint64(1), e.Statistics().ChecksumErrors)
}

func TestSendMute_Directed(t *testing.T) {
	a := busim.NewDevice(devA)
	b := busim.NewDevice(devB)
	e, bus := newEngine(t, a, b)

	require.NoError(t, e.SendMute(devA, rdm.PIDDiscMute))
	assert.True(t, a.Muted())
	assert.False(t, b.Muted())
	requireResumed(t, e, bus)

	// Only b answers now.
	uid, err := e.SendDiscovery(rdm.ZeroUID, rdm.BroadcastAll)
	require.NoError(t, err)
	assert.Equal(t, devB, uid)

	// Muting again is harmless.
	require.NoError(t, e.SendMute(devA, rdm.PIDDiscMute))
}

func TestSendMute_BroadcastExpectsNoReply(t *testing.T) {
	a := busim.NewDevice(devA)
	b := busim.NewDevice(devB)
	e, bus := newEngine(t, a, b)
	require.NoError(t, e.SendMute(devA, rdm.PIDDiscMute))
	require.NoError(t, e.SendMute(devB, rdm.PIDDiscMute))

	require.NoError(t, e.SendMute(rdm.BroadcastAll, rdm.PIDDiscUnMute))
	assert.False(t, a.Muted())
	assert.False(t, b.Muted())
	requireResumed(t, e, bus)
}

func TestSendMute_CorruptChecksumIsNoReply(t *testing.T) {
	e, _ := newEngine(t, busim.NewDevice(devA, busim.WithCorruptChecksum()))

	err := e.SendMute(devA, rdm.PIDDiscMute)
	require.ErrorIs(t, err, rdm.ErrNoReply)
	var verr *rdm.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, rdm.AnomalyChecksum, verr.Type)
}

func TestSendMute_Absent(t *testing.T) {
	e, bus := newEngine(t)

	err := e.SendMute(devA, rdm.PIDDiscMute)
	require.ErrorIs(t, err, rdm.ErrNoReply)
	requireResumed(t, e, bus)
}

func TestSendMute_RejectsOtherPIDs(t *testing.T) {
	e, _ := newEngine(t)
	assert.Error(t, e.SendMute(devA, rdm.PIDIdentifyDevice))
}

func TestSendGetSet(t *testing.T) {
	dev := busim.NewDevice(devA, busim.WithStartAddress(17), busim.WithLabel("spot 1"))
	e, bus := newEngine(t, dev)

	buf := make([]byte, rdm.MaxPDL)
	n, err := e.SendGet(devA, rdm.PIDDMXStartAddress, buf)
	require.NoError(t, err)
	addr, err := rdm.DecodeStartAddress(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint16(17), addr)

	require.NoError(t, e.SendSet(devA, rdm.PIDDMXStartAddress, rdm.EncodeStartAddress(101)))
	assert.Equal(t, uint16(101), dev.StartAddress())

	n, err = e.SendGet(devA, rdm.PIDDeviceLabel, buf)
	require.NoError(t, err)
	assert.Equal(t, "spot 1", string(buf[:n]))

	n, err = e.SendGet(devA, rdm.PIDDeviceInfo, buf)
	require.NoError(t, err)
	info, err := rdm.DecodeDeviceInfo(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint16(101), info.StartAddress)

	requireResumed(t, e, bus)
}

func TestSendSet_Nack(t *testing.T) {
	e, bus := newEngine(t, busim.NewDevice(devA))

	err := e.SendSet(devA, rdm.PIDDMXStartAddress, rdm.EncodeStartAddress(600))
	require.ErrorIs(t, err, rdm.ErrNack)
	var nack *rdm.NackError
	require.ErrorAs(t, err, &nack)
	assert.Equal(t, uint16(rdm.NackDataOutOfRange), nack.Reason)
	assert.False(t, errors.Is(err, rdm.ErrNoReply))
	assert.Equal(t, uint64(1), e.Statistics().Nacks)
	requireResumed(t, e, bus)
}

func TestSendPacket_Generic(t *testing.T) {
	e, _ := newEngine(t, busim.NewDevice(devA))

	resp, err := e.SendPacket(rdm.NewGetCommand(rdm.ZeroUID, devA, rdm.PIDSupportedParameters, nil))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, devA, resp.Source)
	assert.Equal(t, e.ControllerUID(), resp.Destination)
	assert.Len(t, resp.Data, 6)

	resp, err = e.SendPacket(rdm.NewDiscUniqueBranch(rdm.ZeroUID, rdm.ZeroUID, rdm.BroadcastAll))
	require.NoError(t, err)
	assert.True(t, resp.IsDiscoveryResponse())
	assert.Equal(t, devA, resp.Source)
}

func TestSendSet_PayloadTooLarge(t *testing.T) {
	e, _ := newEngine(t, busim.NewDevice(devA))

	err := e.SendSet(devA, rdm.PIDDeviceLabel, make([]byte, rdm.MaxPDL+1))
	require.ErrorIs(t, err, dmx.ErrPayloadTooLarge)
	assert.Equal(t, dmx.TaskSend, e.Mode())
}

func TestTransaction_NotSending(t *testing.T) {
	bus := busim.New(busim.NewDevice(devA))
	e := dmx.New(bus, dmx.DefaultConfig(), nil)

	_, err := e.SendDiscovery(rdm.ZeroUID, rdm.BroadcastAll)
	assert.ErrorIs(t, err, dmx.ErrNotSending)

	e.StartInput()
	assert.ErrorIs(t, e.SendMute(devA, rdm.PIDDiscMute), dmx.ErrNotSending)
}

func TestTransaction_FromHandlerContext(t *testing.T) {
	bus := busim.New(busim.NewDevice(devA))
	e := dmx.New(bus, dmx.DefaultConfig(), nil)

	var cbErr error
	e.SetDataReceivedCallback(func(int) {
		cbErr = e.SendMute(devA, rdm.PIDDiscMute)
	})
	e.StartInput()
	bus.QueueFrame([]byte{rdm.StartCodeDMX, 1, 2, 3})
	bus.QueueFrame(nil)
	poll(e, bus.Pending()+1)

	assert.ErrorIs(t, cbErr, dmx.ErrBusy)
}

func TestTransaction_NumbersIncrementAndWrap(t *testing.T) {
	e, bus := newEngine(t)

	for i := 0; i < 258; i++ {
		require.NoError(t, e.SendMute(rdm.BroadcastAll, rdm.PIDDiscUnMute))
	}

	packets := bus.Packets()
	require.Len(t, packets, 258)
	for i, p := range packets {
		assert.Equal(t, uint8(i), p.TransactionNumber, "packet %d", i)
		assert.Equal(t, e.ControllerUID(), p.Source)
		assert.Equal(t, uint8(1), p.PortID)
	}
}

func TestTransaction_OutputContinuesBetweenTransactions(t *testing.T) {
	e, bus := newEngine(t, busim.NewDevice(devA))
	e.SetSlot(1, 0x42)

	for i := 0; i < 5; i++ {
		_, _ = e.SendDiscovery(rdm.ZeroUID, rdm.BroadcastAll)
		require.Equal(t, dmx.TaskSend, e.Mode())
	}
	poll(e, 2*frameTicks(dmx.MinSlots))

	assert.GreaterOrEqual(t, bus.Frames(), 5)
	frame := bus.LastFrame()
	require.Len(t, frame, dmx.MinSlots+1)
	assert.Equal(t, byte(0x42), frame[1])
	assert.Zero(t, bus.Errors())
}

func TestTransaction_SendTimeout(t *testing.T) {
	a := busim.NewDevice(devA)
	bus := busim.New(a)
	cfg := dmx.DefaultConfig()
	cfg.Slots = dmx.MaxSlots
	cfg.SendTimeout = 100
	e := dmx.New(bus, cfg, nil)
	e.StartRDM(bus.DirectionPin())
	poll(e, 10)

	// The next break is a full frame away, so the request never goes out.
	err := e.SendMute(devA, rdm.PIDDiscMute)
	require.ErrorIs(t, err, rdm.ErrNoReply)
	assert.False(t, errors.Is(err, rdm.ErrMalformed))
	assert.False(t, a.Muted())
	assert.Empty(t, bus.Packets())
	requireResumed(t, e, bus)
	assert.Equal(t, uint64(1), e.Statistics().Timeouts)

	e.SetMaxSlots(dmx.MinSlots)
	require.NoError(t, e.SendMute(devA, rdm.PIDDiscMute))
	assert.True(t, a.Muted())
	requireResumed(t, e, bus)
}

func TestTransaction_IncompleteResponse(t *testing.T) {
	e, bus := newEngine(t,
		busim.NewDevice(devA, busim.WithTruncatedResponse(10)),
		busim.NewDevice(devB),
	)

	_, err := e.SendGet(devA, rdm.PIDDeviceInfo, make([]byte, rdm.MaxPDL))
	require.ErrorIs(t, err, rdm.ErrMalformed)
	assert.Contains(t, err.Error(), "incomplete response")
	requireResumed(t, e, bus)

	// A cut discovery response still shows that something answered.
	_, err = e.SendDiscovery(devA, devA)
	require.ErrorIs(t, err, rdm.ErrMalformed)
	requireResumed(t, e, bus)

	_, err = e.SendGet(devB, rdm.PIDDeviceInfo, make([]byte, rdm.MaxPDL))
	require.NoError(t, err)
	requireResumed(t, e, bus)
}

func TestTransaction_ResumeTimeout(t *testing.T) {
	var logs bytes.Buffer
	bus := busim.New(busim.NewDevice(devA))
	cfg := dmx.DefaultConfig()
	cfg.Slots = dmx.MinSlots
	cfg.ResumeTimeout = 1
	e := dmx.New(bus, cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	e.StartRDM(bus.DirectionPin())

	require.NoError(t, e.SendMute(devA, rdm.PIDDiscMute))
	assert.Contains(t, logs.String(), "output did not resume")
	assert.Equal(t, dmx.TaskResumeSend, e.Mode())
	assert.ErrorIs(t, e.SendMute(devA, rdm.PIDDiscMute), dmx.ErrBusy)

	poll(e, 2*frameTicks(dmx.MinSlots))
	assert.Equal(t, dmx.TaskSend, e.Mode())
	require.NoError(t, e.SendMute(devA, rdm.PIDDiscUnMute))
}
