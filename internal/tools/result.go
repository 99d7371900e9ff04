package tools

// Result is the unified return type from tool execution. Tool
// failures are values, not panics: IsError marks them so the loop can
// record and continue.
type Result struct {
	ForLLM  string `json:"for_llm"`  // content handed back to the loop
	IsError bool   `json:"is_error"` // marks error
	Err     error  `json:"-"`        // underlying cause (not serialized)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
