package payment

import "errors"

var (
	ErrMissingFields    = errors.New("missing required fields")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrAmountMismatch   = errors.New("amount does not match plan price")
	ErrAmountOutOfRange = errors.New("amount out of range")
	ErrDuplicatePayment = errors.New("transaction already used for a payment")
	ErrChainFailed      = errors.New("transaction failed on blockchain")
	ErrChainTimeout     = errors.New("transaction confirmation timeout")
	ErrUnderpaid        = errors.New("transfer does not cover the bill")
)
