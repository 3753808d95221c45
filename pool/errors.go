package pool

import "github.com/pkg/errors"

// baseErr is the common shell for the core's sentinel error types,
// ported from the teacher's baseErr/IllegalStatusErr pair and extended
// with the rest of the error taxonomy.
type baseErr struct {
	msg string
}

func (e *baseErr) Error() string {
	return e.msg
}

// IllegalStatusErr signals an operation attempted against a pool or
// entry in the wrong lifecycle state (e.g. returning an object twice).
type IllegalStatusErr struct{ baseErr }

func NewIllegalStatusErr(msg string) *IllegalStatusErr {
	return &IllegalStatusErr{baseErr{msg}}
}

// PoolClosedErr is returned by Borrow/AddObject once the pool has been
// closed.
type PoolClosedErr struct{ baseErr }

func NewPoolClosedErr(msg string) *PoolClosedErr {
	return &PoolClosedErr{baseErr{msg}}
}

// PoolExhaustedErr covers both the immediate FAIL policy and a BLOCK
// wait that ran out its maxWaitMs budget.
type PoolExhaustedErr struct{ baseErr }

func NewPoolExhaustedErr(msg string) *PoolExhaustedErr {
	return &PoolExhaustedErr{baseErr{msg}}
}

// NoValidObjectErr marks a newly created entry that failed
// activate/validate/passivate — retrying indefinitely on a broken
// factory would hide the failure, so this terminates the borrow.
type NoValidObjectErr struct{ baseErr }

func NewNoValidObjectErr(msg string) *NoValidObjectErr {
	return &NoValidObjectErr{baseErr{msg}}
}

// FactoryReturnedNothingErr is returned when factory.Make produced a nil
// value without an error.
type FactoryReturnedNothingErr struct{ baseErr }

func NewFactoryReturnedNothingErr(msg string) *FactoryReturnedNothingErr {
	return &FactoryReturnedNothingErr{baseErr{msg}}
}

// BadConfigErr is returned by config setters given an unrecognized enum
// value (e.g. an unknown WhenExhausted or eviction policy name).
type BadConfigErr struct{ baseErr }

func NewBadConfigErr(msg string) *BadConfigErr {
	return &BadConfigErr{baseErr{msg}}
}

// WrapFactoryErr attaches a stack trace to an error raised by a factory
// callback, for the categories spec §7 requires to be surfaced rather
// than swallowed (Make failures, Invalidate's Destroy failure).
func WrapFactoryErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}
