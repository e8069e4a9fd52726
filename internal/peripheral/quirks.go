// quirks.go - individually toggleable peripheral side effects

/*
Some firmware behaviour doesn't fit the clean MMIO idioms in
peripheral.go: small side effects tied to link state that the original
implementation reproduces as one-off hacks rather than general rules.
QuirkRule gives each of those a name and an on/off switch instead of
burying them unconditionally inside Tick, mirroring the Intuition
Engine's per-component "quirk" toggles in its sound-chip emulation.
*/

package peripheral

import (
	"fmt"

	"github.com/commaai/asm2464pd-firmware/internal/mem"
	lua "github.com/yuin/gopher-lua"
)

// QuirkRule is evaluated once per Tick, after deferred events fire.
type QuirkRule interface {
	Name() string
	Enabled() bool
	Apply(m *mem.Memory, p *Peripheral)
}

type goQuirk struct {
	name    string
	enabled bool
	apply   func(m *mem.Memory, p *Peripheral)
}

func (q *goQuirk) Name() string    { return q.name }
func (q *goQuirk) Enabled() bool   { return q.enabled }
func (q *goQuirk) Apply(m *mem.Memory, p *Peripheral) {
	q.apply(m, p)
}

// installDefaultQuirks registers the built-in quirk rules, skipping
// any name present (and true) in disabled.
func (p *Peripheral) installDefaultQuirks(disabled map[string]bool) {
	rules := []*goQuirk{
		{
			name:    "sentinel-zero-on-connect",
			enabled: true,
			apply: func(m *mem.Memory, p *Peripheral) {
				// The early PHY-init poll loop spins on XDATA 0x0AE3
				// reaching zero once the link comes up; without this the
				// loop never observes the transition the real silicon
				// produces as a side effect of PHY calibration.
				if p.usbConnected {
					m.PokeXDATA(regQuirkSentinel, 0x00)
				}
			},
		},
	}
	for _, r := range rules {
		if disabled[r.name] {
			continue
		}
		p.quirks = append(p.quirks, r)
	}
}

// LuaQuirk wraps a user-supplied Lua script as a QuirkRule. The script
// must define a global function `apply(read, write)` where read/write
// are closures bound to the peripheral's XDATA space; returning early
// or erroring disables the rule for that tick only (the error is
// surfaced via LastError, not a panic, since a scripted quirk
// misbehaving must never bring down the emulator core).
type LuaQuirk struct {
	name      string
	enabled   bool
	state     *lua.LState
	LastError error
}

// NewLuaQuirk compiles script and returns a QuirkRule that invokes its
// top-level apply(read, write) function each tick.
func NewLuaQuirk(name, script string) (*LuaQuirk, error) {
	L := lua.NewState()
	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("peripheral: compiling quirk %q: %w", name, err)
	}
	return &LuaQuirk{name: name, enabled: true, state: L}, nil
}

func (q *LuaQuirk) Name() string  { return q.name }
func (q *LuaQuirk) Enabled() bool { return q.enabled }
func (q *LuaQuirk) SetEnabled(v bool) { q.enabled = v }

// Close releases the underlying Lua state.
func (q *LuaQuirk) Close() {
	if q.state != nil {
		q.state.Close()
	}
}

func (q *LuaQuirk) Apply(m *mem.Memory, p *Peripheral) {
	L := q.state
	read := L.NewFunction(func(L *lua.LState) int {
		addr := uint16(L.ToInt(1))
		L.Push(lua.LNumber(m.PeekXDATA(addr)))
		return 1
	})
	write := L.NewFunction(func(L *lua.LState) int {
		addr := uint16(L.ToInt(1))
		val := byte(L.ToInt(2))
		m.PokeXDATA(addr, val)
		return 0
	})
	fn := L.GetGlobal("apply")
	if fn.Type() != lua.LTFunction {
		q.LastError = fmt.Errorf("peripheral: quirk %q has no apply function", q.name)
		return
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, read, write); err != nil {
		q.LastError = err
	}
}

// AddQuirk appends a custom rule (Go-native or Lua-scripted) to the
// peripheral's per-tick evaluation list.
func (p *Peripheral) AddQuirk(q QuirkRule) {
	p.quirks = append(p.quirks, q)
}

// Quirks returns the names and enabled state of every registered
// quirk rule, for dump_state reporting.
func (p *Peripheral) Quirks() map[string]bool {
	out := make(map[string]bool, len(p.quirks))
	for _, q := range p.quirks {
		out[q.Name()] = q.Enabled()
	}
	return out
}
