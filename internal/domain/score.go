package domain

// Termination reasons the supervisor UI offers for manual overrides.
const (
	ReasonManualTermination = "manual termination"
	ReasonSystemError       = "System Error / AI not responding"
	ReasonCustomerLeft      = "Customer cancelled or left early"
	ReasonStaffForgot       = "Staff forgot to finish session"
)

var reasonScores = map[string]int{
	ReasonSystemError:  90,
	ReasonCustomerLeft: 80,
	ReasonStaffForgot:  40,
}

// SessionScore grades a closed session from 0 to 100. A normal-flow close
// always scores 100; abnormal closes are weighted by their recorded reason,
// with 60 for reasons outside the known set.
func SessionScore(isNormalFlow bool, reason string) int {
	if isNormalFlow {
		return 100
	}
	if score, ok := reasonScores[reason]; ok {
		return score
	}
	return 60
}
