// clock.go - cycle accumulator driving periodic peripheral events

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

Forked from the Intuition Engine's component reset/event-scheduling idiom.
License: GPLv3 or later
*/

/*
clock.go plays the role the Intuition Engine's playback-bus render
loops play for their sound chips: advance by a cycle delta, and fire
whatever periodic events fall due, without owning a goroutine or a
wall-clock timer of its own. Here the only periodic event is the
bridge controller's housekeeping timer tick, which the firmware's ISR
expects roughly once per 1000 cycles.
*/

package clock

// PeripheralTicker is the subset of *peripheral.Peripheral the clock
// drives; kept as an interface so clock never imports peripheral.
type PeripheralTicker interface {
	Tick(delta uint64)
	ArmTimerEvent()
}

// TimerPeriod is the number of CPU cycles between housekeeping timer
// events, matching the interval the firmware's polling loops are
// tuned to expect.
const TimerPeriod = 1000

// Clock accumulates consumed CPU cycles and arms the periodic timer
// event at TimerPeriod boundaries.
type Clock struct {
	peripheral PeripheralTicker
	total      uint64
	sinceTimer uint64
}

// New constructs a Clock driving p.
func New(p PeripheralTicker) *Clock {
	return &Clock{peripheral: p}
}

// Cycles returns the total number of cycles advanced since the last Reset.
func (c *Clock) Cycles() uint64 { return c.total }

// Reset zeroes the accumulated cycle counters. It does not touch the
// peripheral, whose own reset is the caller's responsibility.
func (c *Clock) Reset() {
	c.total = 0
	c.sinceTimer = 0
}

// Advance is called once per CPU step with the cycle cost just
// consumed. It forwards the delta to the peripheral and arms the
// periodic timer event each time the accumulated count crosses a
// TimerPeriod boundary, including when a single step's cost spans more
// than one period.
func (c *Clock) Advance(delta uint64) {
	c.total += delta
	c.peripheral.Tick(delta)

	c.sinceTimer += delta
	for c.sinceTimer >= TimerPeriod {
		c.sinceTimer -= TimerPeriod
		c.peripheral.ArmTimerEvent()
	}
}
