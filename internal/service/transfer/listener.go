package transfer

// Listener receives the lifecycle callbacks of a transfer session.
// Callbacks run on the session worker goroutine, in order. Exactly one of
// OnCompleted, OnCancelled and OnFailed is called per started session.
type Listener interface {
	// OnProgress is called once per received chunk. total is
	// domain.UnknownTotal when the server did not report a length.
	OnProgress(received, total int64)
	OnCompleted()
	OnCancelled()
	OnFailed(description string)
}

// ListenerFuncs adapts optional functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Progress  func(received, total int64)
	Completed func()
	Cancelled func()
	Failed    func(description string)
}

// OnProgress calls Progress if set
func (l ListenerFuncs) OnProgress(received, total int64) {
	if l.Progress != nil {
		l.Progress(received, total)
	}
}

// OnCompleted calls Completed if set
func (l ListenerFuncs) OnCompleted() {
	if l.Completed != nil {
		l.Completed()
	}
}

// OnCancelled calls Cancelled if set
func (l ListenerFuncs) OnCancelled() {
	if l.Cancelled != nil {
		l.Cancelled()
	}
}

// OnFailed calls Failed if set
func (l ListenerFuncs) OnFailed(description string) {
	if l.Failed != nil {
		l.Failed(description)
	}
}

// NopListener ignores all callbacks
type NopListener struct{}

func (NopListener) OnProgress(received, total int64) {}
func (NopListener) OnCompleted()                     {}
func (NopListener) OnCancelled()                     {}
func (NopListener) OnFailed(description string)      {}
