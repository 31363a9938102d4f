package port

// ChallengePurpose labels why a one-time code was issued.
type ChallengePurpose string

const (
	PurposeRegistration ChallengePurpose = "registration"
	PurposeLogin        ChallengePurpose = "login"
	PurposeSetup        ChallengePurpose = "2fa_setup"
	PurposeDisable      ChallengePurpose = "2fa_disable"
)

// AuthMetrics records authentication flow outcomes.
type AuthMetrics interface {
	ChallengeIssued(purpose ChallengePurpose)
	ChallengeChecked(purpose ChallengePurpose, outcome string)
	DeliveryFailed(purpose ChallengePurpose)
	LoginCompleted(outcome string)
}

// NopAuthMetrics discards all observations.
type NopAuthMetrics struct{}

func (NopAuthMetrics) ChallengeIssued(ChallengePurpose)          {}
func (NopAuthMetrics) ChallengeChecked(ChallengePurpose, string) {}
func (NopAuthMetrics) DeliveryFailed(ChallengePurpose)           {}
func (NopAuthMetrics) LoginCompleted(string)                     {}
