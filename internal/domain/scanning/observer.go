package scanning

import "context"

// StatusObserver receives every visible state change and noteworthy log message
// produced by the pipeline. Calls arrive on whichever goroutine caused the event,
// so implementations must be safe for concurrent use and must not block for long.
type StatusObserver interface {
	OnStatus(ctx context.Context, result ScanResult)
	OnLog(ctx context.Context, message string)
}

// Observers fans a single notification out to several observers in order.
type Observers []StatusObserver

// OnStatus forwards result to every observer.
func (o Observers) OnStatus(ctx context.Context, result ScanResult) {
	for _, obs := range o {
		if obs != nil {
			obs.OnStatus(ctx, result)
		}
	}
}

// OnLog forwards message to every observer.
func (o Observers) OnLog(ctx context.Context, message string) {
	for _, obs := range o {
		if obs != nil {
			obs.OnLog(ctx, message)
		}
	}
}

// ObserverFuncs adapts plain functions to StatusObserver. Nil fields are ignored.
type ObserverFuncs struct {
	Status func(ctx context.Context, result ScanResult)
	Log    func(ctx context.Context, message string)
}

func (f ObserverFuncs) OnStatus(ctx context.Context, result ScanResult) {
	if f.Status != nil {
		f.Status(ctx, result)
	}
}

func (f ObserverFuncs) OnLog(ctx context.Context, message string) {
	if f.Log != nil {
		f.Log(ctx, message)
	}
}
