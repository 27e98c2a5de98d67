package core

// Operation outcomes reported to an Observer.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
	OutcomeNoop    = "noop"
)

// Observer receives one call per completed operation.
// It is passed per call; nothing registers observers globally.
type Observer interface {
	OnOperation(name, outcome string)
}

// Observe notifies every non-nil observer.
func Observe(observers []Observer, name, outcome string) {
	for _, obs := range observers {
		if obs != nil {
			obs.OnOperation(name, outcome)
		}
	}
}

// ObserveErr reports OutcomeFailure when err is not nil and OutcomeSuccess otherwise.
func ObserveErr(observers []Observer, name string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	Observe(observers, name, outcome)
}
