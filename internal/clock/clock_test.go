package clock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePeripheral struct {
	ticked     []uint64
	timerEvents int
}

func (f *fakePeripheral) Tick(delta uint64) { f.ticked = append(f.ticked, delta) }
func (f *fakePeripheral) ArmTimerEvent()    { f.timerEvents++ }

func TestAdvanceForwardsTickToPeripheral(t *testing.T) {
	p := &fakePeripheral{}
	c := New(p)
	c.Advance(4)
	c.Advance(2)
	require.Equal(t, []uint64{4, 2}, p.ticked)
	require.Equal(t, uint64(6), c.Cycles())
}

func TestPeriodicTimerEventFiresAtBoundary(t *testing.T) {
	p := &fakePeripheral{}
	c := New(p)
	for i := 0; i < 999; i++ {
		c.Advance(1)
	}
	require.Equal(t, 0, p.timerEvents)
	c.Advance(1)
	require.Equal(t, 1, p.timerEvents)
}

func TestPeriodicTimerEventFiresMultipleTimesForLargeDelta(t *testing.T) {
	p := &fakePeripheral{}
	c := New(p)
	c.Advance(3500)
	require.Equal(t, 3, p.timerEvents)
}

func TestResetClearsCounters(t *testing.T) {
	p := &fakePeripheral{}
	c := New(p)
	c.Advance(500)
	c.Reset()
	require.Equal(t, uint64(0), c.Cycles())
	c.Advance(500)
	require.Equal(t, 0, p.timerEvents)
	c.Advance(500)
	require.Equal(t, 1, p.timerEvents)
}
