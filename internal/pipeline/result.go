package pipeline

// stageResult is the outcome of a stage that may end a task early. A zero
// value means the task continues; otherwise code names the failure.
type stageResult struct {
	code string
}

func failed(code string) stageResult {
	return stageResult{code: code}
}

func (r stageResult) ok() bool {
	return r.code == ""
}
