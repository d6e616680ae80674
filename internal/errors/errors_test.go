package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		wantErr string
	}{
		{
			name:    "what only",
			err:     &Error{What: "something broke"},
			wantErr: "something broke",
		},
		{
			name:    "what and why",
			err:     &Error{What: "something broke", Why: "bad input"},
			wantErr: "something broke: bad input",
		},
		{
			name: "with cause",
			err: &Error{
				What:  "something broke",
				Cause: errors.New("underlying error"),
			},
			wantErr: "something broke: underlying error",
		},
		{
			name: "why and cause",
			err: &Error{
				What:  "something broke",
				Why:   "bad input",
				Cause: errors.New("underlying error"),
			},
			wantErr: "something broke: bad input: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantErr {
				t.Errorf("Error() = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestErrorJSON(t *testing.T) {
	err := &Error{
		Code:  CodeTaskNotFound,
		What:  "task abc not found",
		Why:   "No task with this ID exists",
		Cause: errors.New("row missing"),
	}

	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("MarshalJSON failed: %v", marshalErr)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if result["code"] != string(CodeTaskNotFound) {
		t.Errorf("code = %v, want %v", result["code"], CodeTaskNotFound)
	}
	if result["what"] != "task abc not found" {
		t.Errorf("what = %v, want %v", result["what"], "task abc not found")
	}
	if result["cause"] != "row missing" {
		t.Errorf("cause = %v, want %v", result["cause"], "row missing")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantCode Code
	}{
		{"task not found", ErrTaskNotFound("t1"), CodeTaskNotFound},
		{"duplicate edge", ErrDuplicateEdge("a", "b"), CodeDuplicateEdge},
		{"queue full", ErrQueueFull(100), CodeQueueFull},
		{"pool not found", ErrPoolNotFound("p1"), CodePoolNotFound},
		{"pool exists", ErrPoolExists("p1"), CodePoolExists},
		{"pool closed", ErrPoolClosed("p1"), CodePoolClosed},
		{"worker not found", ErrWorkerNotFound("p1", "w1"), CodeWorkerNotFound},
		{"invalid identifier", ErrInvalidIdentifier("XYZ"), CodeInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.wantCode)
			}
			if tt.err.What == "" {
				t.Error("What should not be empty")
			}
		})
	}
}

func TestCategoryMapping(t *testing.T) {
	tests := []struct {
		code Code
		want Category
	}{
		{CodeInvalidTask, CategoryValidation},
		{CodeCycleDetected, CategoryCycle},
		{CodeDuplicateEdge, CategoryDuplicate},
		{CodeTaskNotFound, CategoryNotFound},
		{CodeQueueFull, CategoryCapacity},
		{CodeRequestTimeout, CategoryTimeout},
		{CodePersistence, CategoryTransient},
		{CodeCallback, CategoryCallback},
		{CodeInternal, CategoryFatal},
		{Code("NO_SUCH_CODE"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := &Error{Code: tt.code, What: "x"}
			if got := err.Category(); got != tt.want {
				t.Errorf("Category() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategoryRetryable(t *testing.T) {
	if !CategoryTransient.Retryable() {
		t.Error("transient errors should be retryable")
	}
	if !CategoryCallback.Retryable() {
		t.Error("callback errors should be retryable")
	}
	if CategoryValidation.Retryable() {
		t.Error("validation errors should not be retryable")
	}
	if CategoryFatal.Retryable() {
		t.Error("fatal errors should not be retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := ErrTaskNotFound("t1").WithCause(cause)

	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestWithCause(t *testing.T) {
	original := ErrTaskNotFound("t1")
	cause := errors.New("row missing")
	wrapped := original.WithCause(cause)

	if wrapped.Cause != cause {
		t.Error("WithCause should set the cause")
	}
	if original.Cause != nil {
		t.Error("Original should not be modified")
	}
	if wrapped.Code != original.Code {
		t.Error("Code should be copied")
	}
	if wrapped.What != original.What {
		t.Error("What should be copied")
	}
}

func TestIs(t *testing.T) {
	err1 := ErrTaskNotFound("t1")
	err2 := ErrTaskNotFound("t2")
	err3 := ErrPoolNotFound("p1")

	if !errors.Is(err1, err2) {
		t.Error("errors with same code should match with Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %v, want empty", got)
	}
	if got := CodeOf(ErrQueueFull(10)); got != CodeQueueFull {
		t.Errorf("CodeOf = %v, want %v", got, CodeQueueFull)
	}
	wrapped := ErrPoolClosed("p1").WithCause(errors.New("x"))
	if got := CodeOf(wrapped); got != CodePoolClosed {
		t.Errorf("CodeOf wrapped = %v, want %v", got, CodePoolClosed)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Errorf("CodeOf plain = %v, want %v", got, CodeInternal)
	}
}

func TestAsError(t *testing.T) {
	structured := ErrTaskNotFound("t1")

	if got := AsError(structured); got != structured {
		t.Error("AsError should return the structured error unchanged")
	}

	wrapped := structured.WithCause(errors.New("cause"))
	if got := AsError(wrapped); got == nil || got.Code != CodeTaskNotFound {
		t.Error("AsError should find a wrapped structured error")
	}

	plain := errors.New("regular error")
	got := AsError(plain)
	if got == nil || got.Code != CodeInternal {
		t.Errorf("AsError(plain) should wrap as internal, got %+v", got)
	}
	if got.Cause != plain {
		t.Error("AsError(plain) should keep the original as cause")
	}

	if AsError(nil) != nil {
		t.Error("AsError(nil) should return nil")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CodeInvalidStatus, "status %q is not valid", "bogus")
	if err.Code != CodeInvalidStatus {
		t.Errorf("Code = %v, want %v", err.Code, CodeInvalidStatus)
	}
	if err.What != `status "bogus" is not valid` {
		t.Errorf("What = %q", err.What)
	}
}
