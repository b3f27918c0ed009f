package model

import (
	"errors"
	"fmt"
)

var (
	// ErrAmbiguousSignal is returned when long and short crossings fire on the same bar.
	ErrAmbiguousSignal = errors.New("ambiguous signal: long and short both triggered")

	// ErrInvalidExchangeEnum wraps every unparseable side, order type or order status.
	ErrInvalidExchangeEnum = errors.New("invalid exchange enum")

	// ErrEmptySlice is returned by indicators asked to average zero candles.
	ErrEmptySlice = errors.New("empty candle slice")
)

// Binance rejection codes the engine treats as "nothing to do".
const (
	CodeUnknownOrder = -2011 // CANCEL_REJECTED / Unknown order sent
	CodeNoSuchOrder  = -2013 // Order does not exist
)

// ExchangeError is a rejection reported by the exchange in its response body.
type ExchangeError struct {
	Code   int64  `json:"code"`
	Msg    string `json:"msg"`
	Status int    `json:"status"` // HTTP status, 0 for stream errors
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Msg)
}

// Benign reports whether the rejection only means there was nothing to act on.
func (e *ExchangeError) Benign() bool {
	return e.Code == CodeUnknownOrder || e.Code == CodeNoSuchOrder
}

// IsBenign reports whether err is (or wraps) a benign exchange rejection.
func IsBenign(err error) bool {
	var ee *ExchangeError
	return errors.As(err, &ee) && ee.Benign()
}

func invalidEnum(kind, value string) error {
	return fmt.Errorf("%w: %s %q", ErrInvalidExchangeEnum, kind, value)
}
