package power

import "github.com/sweeney/power-sensor/internal/logic"

// kindFromLine maps a raw GPIO value to a power state.
func kindFromLine(raw int, activeLow bool) logic.Kind {
	mains := raw != 0
	if activeLow {
		mains = !mains
	}
	if mains {
		return logic.KindRestored
	}
	return logic.KindLost
}
