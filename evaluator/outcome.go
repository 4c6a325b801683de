package evaluator

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags the shape of artifact a run produced.
type Kind string

const (
	KindDataFrame Kind = "dataframe"
	KindPicture   Kind = "picture"
	KindHTML      Kind = "html"
	KindPlotly    Kind = "plotly"
	KindFolium    Kind = "folium"
	KindError     Kind = "error"
)

func (k Kind) valid() bool {
	switch k {
	case KindDataFrame, KindPicture, KindHTML, KindPlotly, KindFolium, KindError:
		return true
	}
	return false
}

// Outcome is the single artifact of one run. Non-string content produced by
// generated code is carried JSON-encoded.
type Outcome struct {
	Kind    Kind   `json:"type"`
	Content string `json:"content"`
}

func ErrorOutcome(msg string) Outcome {
	return Outcome{Kind: KindError, Content: msg}
}

// String renders the outcome as the JSON object stored in provenance.
func (o Outcome) String() string {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Sprintf("%s: %s", o.Kind, o.Content)
	}
	return string(b)
}

// ErrMissingBinding means the code ran cleanly but left the expected
// binding unset or empty.
var ErrMissingBinding = errors.New("result binding not set")

// ExecutionError is a failure inside generated code.
type ExecutionError struct {
	Msg       string
	Backtrace string
	cause     error
}

func (e *ExecutionError) Error() string { return e.Msg }

func (e *ExecutionError) Unwrap() error { return e.cause }
