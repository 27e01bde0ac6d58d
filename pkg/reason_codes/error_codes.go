package reasoncodes

import (
	"errors"
	"fmt"
)

type ReasonCode string

const (
	ErrValidation          ReasonCode = "ValidationError"
	ErrNotFound            ReasonCode = "NotFoundError"
	ErrStateConflict       ReasonCode = "StateConflictError"
	ErrCommitmentMismatch  ReasonCode = "CommitmentMismatchError"
	ErrChain               ReasonCode = "ChainError"
	ErrCryptoVerification  ReasonCode = "CryptoVerificationFailure"
	ErrProofGeneration     ReasonCode = "ProofGenerationError"
	ErrInternal            ReasonCode = "InternalError"
	StructuralVerification ReasonCode = "StructuralVerificationOnly"
)

// CodedError carries a ReasonCode through wrapped call chains.
type CodedError struct {
	Code    ReasonCode
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func New(code ReasonCode, format string, args ...any) error {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code ReasonCode, cause error, format string, args ...any) error {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf returns the outermost ReasonCode in the chain, or ErrInternal.
func CodeOf(err error) ReasonCode {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrInternal
}

func Is(err error, code ReasonCode) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf strips the code prefix for client-facing output.
func MessageOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		if coded.Cause != nil {
			return coded.Message + ": " + coded.Cause.Error()
		}
		return coded.Message
	}
	return err.Error()
}
