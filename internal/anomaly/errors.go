package anomaly

// TrainingFailedError is the terminal failure of a training run: feature
// extraction yielded nothing usable. The model record transitions to failed
// with this message and is never left active.
type TrainingFailedError struct {
	Reason string
}

func (e *TrainingFailedError) Error() string {
	return "training failed: " + e.Reason
}
