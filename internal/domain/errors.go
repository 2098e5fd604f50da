package domain

import "errors"

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account inactive")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrPostingFailed     = errors.New("posting failed")
)
