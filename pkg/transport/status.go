package transport

// Status is the rolling outcome of send attempts.
type Status struct {
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	Failed               bool   `json:"failed"`
}

// Record folds the outcome of one send attempt into s.
func (s *Status) Record(err error) {
	if err != nil {
		s.ConsecutiveSuccesses = 0
		s.Failed = true
		return
	}
	s.ConsecutiveSuccesses++
	s.Failed = false
}

// Reset clears the streak and the failure flag.
func (s *Status) Reset() {
	*s = Status{}
}
