package pool

// Observer is notified as jobs move through the pool. JobSubmitted is called
// on the submitting goroutine before the job is visible to any worker,
// JobStarted and JobFinished on the worker that runs it.
//
// Observers must be safe for concurrent use and should not block, they run
// inline with submission and execution.
type Observer interface {
	JobSubmitted(JobInfo)
	JobStarted(JobInfo)
	JobFinished(JobInfo)
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Submitted func(JobInfo)
	Started   func(JobInfo)
	Finished  func(JobInfo)
}

func (o ObserverFuncs) JobSubmitted(i JobInfo) {
	if o.Submitted != nil {
		o.Submitted(i)
	}
}

func (o ObserverFuncs) JobStarted(i JobInfo) {
	if o.Started != nil {
		o.Started(i)
	}
}

func (o ObserverFuncs) JobFinished(i JobInfo) {
	if o.Finished != nil {
		o.Finished(i)
	}
}
