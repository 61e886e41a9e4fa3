package domain

import "fmt"

type Success struct {
	OutputPath    string `json:"output_path"`
	OriginalSize  int64  `json:"original_size"`
	ConvertedSize int64  `json:"converted_size"`
	Format        string `json:"format"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
}

type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Result is the outcome of one conversion call. Exactly one of Success and
// Failure is set.
type Result struct {
	Success *Success `json:"success,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

func Succeeded(s Success) Result {
	return Result{Success: &s}
}

func Failed(err error) Result {
	return Result{Failure: FailureFrom(err)}
}

func (r Result) OK() bool {
	return r.Success != nil
}

// FailureFrom classifies err. Errors that carry no kind become Unexpected.
func FailureFrom(err error) *Failure {
	if err == nil {
		return &Failure{Kind: KindUnexpected, Message: "unknown error"}
	}
	if f, ok := err.(*Failure); ok {
		return f
	}
	return &Failure{Kind: KindOf(err), Message: err.Error()}
}

// Recovered turns a recovered panic value into an Unexpected failure.
func Recovered(v any) Result {
	return Result{Failure: &Failure{
		Kind:    KindUnexpected,
		Message: fmt.Sprintf("unexpected error: %v", v),
	}}
}
