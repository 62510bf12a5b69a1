package service

import "gowa-blast/internal/model"

// Effect is a bit set of side effects the registry applies after a transition.
type Effect uint8

const (
	EffectStoreQR Effect = 1 << iota
	EffectClearQR
	EffectDestroy
)

func (e Effect) Has(f Effect) bool { return e&f != 0 }

// Transition is the session state machine. ok is false when the event is not
// valid in the current status; the caller must then leave the session alone.
//
//	initializing  -> needs_scan | authenticated | auth_failure
//	needs_scan    -> needs_scan (new QR) | authenticated | auth_failure
//	authenticated -> ready | disconnected
//	ready         -> disconnected
//
// auth_failure and disconnected are accepted from any live status and always
// carry EffectDestroy.
func Transition(cur model.Status, kind EventKind) (next model.Status, effects Effect, ok bool) {
	if !cur.Live() {
		return cur, 0, false
	}

	switch kind {
	case EventQR:
		if cur == model.StatusInitializing || cur == model.StatusNeedsScan {
			return model.StatusNeedsScan, EffectStoreQR, true
		}
	case EventAuthenticated:
		if cur == model.StatusInitializing || cur == model.StatusNeedsScan {
			return model.StatusAuthenticated, EffectClearQR, true
		}
	case EventReady:
		if cur == model.StatusAuthenticated {
			return model.StatusReady, EffectClearQR, true
		}
	case EventAuthFailure:
		return model.StatusAuthFailure, EffectClearQR | EffectDestroy, true
	case EventDisconnected:
		return model.StatusDisconnected, EffectClearQR | EffectDestroy, true
	}
	return cur, 0, false
}
