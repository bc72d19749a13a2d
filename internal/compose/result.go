package compose

// Status is the outcome of a compose run
type Status string

const (
	// StatusOk means every requested part is in the output
	StatusOk Status = "ok"
	// StatusDegraded means the base document was produced without some part
	StatusDegraded Status = "degraded"
	// StatusFail means no document was produced
	StatusFail Status = "fail"
)

// Result is the explicit stage result of Compose. Data is set unless
// Status is StatusFail, in which case Err carries the cause.
type Result struct {
	Status     Status
	Data       []byte
	PageCount  int
	Merged     bool
	MergeError string
	Err        error
}

func ok(data []byte, pages int, merged bool) Result {
	return Result{Status: StatusOk, Data: data, PageCount: pages, Merged: merged}
}

func degraded(data []byte, pages int, merged bool, reason string) Result {
	return Result{Status: StatusDegraded, Data: data, PageCount: pages, Merged: merged, MergeError: reason}
}

func fail(err error) Result {
	return Result{Status: StatusFail, Err: err}
}

// Degrade marks a produced result as degraded by an upstream failure, such
// as an attachment that could not be rasterized. Reasons accumulate.
func (r Result) Degrade(reason string) Result {
	if r.Status == StatusFail || reason == "" {
		return r
	}
	r.Status = StatusDegraded
	if r.MergeError == "" {
		r.MergeError = reason
	} else {
		r.MergeError = reason + "; " + r.MergeError
	}
	return r
}
