package domain

// Effect names used in logs, metrics and the operator summary.
const (
	EffectAccountSettled    = "account_settled"
	EffectSettlementState   = "settlement_state"
	EffectStakeholderNotify = "stakeholder_notify"
)

// Effect is the outcome of a best-effort side effect. A failed effect never fails
// the request that triggered it.
type Effect struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// EffectOK records a successful side effect.
func EffectOK(name, target string) Effect {
	return Effect{Name: name, Target: target, OK: true}
}

// EffectFailed records a failed side effect with its reason.
func EffectFailed(name, target string, err error) Effect {
	reason := "unknown"
	if err != nil {
		reason = err.Error()
	}
	return Effect{Name: name, Target: target, Reason: reason}
}

// FailedEffects filters the failures out of a list of effects.
func FailedEffects(effects []Effect) []Effect {
	var failed []Effect
	for _, e := range effects {
		if !e.OK {
			failed = append(failed, e)
		}
	}
	return failed
}
