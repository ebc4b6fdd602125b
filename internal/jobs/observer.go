package jobs

// Observer is told about every state change. Calls happen outside the
// registry lock and must not block.
type Observer interface {
	JobChanged(from Status, job *ExtractionJob)
	JobPurged(job *ExtractionJob)
}

type nopObserver struct{}

func (nopObserver) JobChanged(Status, *ExtractionJob) {}
func (nopObserver) JobPurged(*ExtractionJob)          {}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) JobChanged(from Status, job *ExtractionJob) {
	for _, obs := range o {
		obs.JobChanged(from, cloneJob(job))
	}
}

func (o Observers) JobPurged(job *ExtractionJob) {
	for _, obs := range o {
		obs.JobPurged(cloneJob(job))
	}
}
