package system

// Button identifies one digital input line shared across every emulated
// controller this module models, in the InputPoller contract.
// Not every console's pad uses every bit; each System Core's port-read
// method consults only the bits its own hardware protocol exposes.
type Button uint16

const (
	ButtonUp Button = 1 << iota
	ButtonDown
	ButtonLeft
	ButtonRight
	ButtonA
	ButtonB
	ButtonC
	ButtonX
	ButtonY
	ButtonZ
	ButtonStart
	ButtonSelect
	ButtonL
	ButtonR
)

// Pressed reports whether b is set in the mask.
func (mask Button) Pressed(b Button) bool { return mask&b != 0 }

// InputPoller returns the current state of emulated controllers for up to
// two ports, polled by each System Core at a well-defined instant: the
// SNES at V-blank entry (auto-joypad read), the NES when software latches
// its pads, and the Genesis, SMS/GG and GB on each controller-port read. A
// nil InputPoller is legal everywhere in this module (headless smoke-test
// mode): pollPad treats it as "no buttons pressed" for every System Core.
//
// Pointer-based peripherals (Super Scope, Zapper, mouse) are not modeled;
// see DESIGN.md for the scope-cut rationale.
type InputPoller interface {
	PadState(port int) Button
}

func pollPad(p InputPoller, port int) Button {
	if p == nil {
		return 0
	}
	return p.PadState(port)
}
