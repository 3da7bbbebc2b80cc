package errs

import "errors"

var ErrNotFound = errors.New("not found")

var ErrAlreadyExists = errors.New("already exists")

var ErrInternal = errors.New("internal error")

var ErrInvalidInput = errors.New("invalid input")

var ErrUserNotFound = errors.New("user not found")

var ErrInvalidSymbol = errors.New("invalid symbol")

var ErrQuoteUnavailable = errors.New("quote provider unavailable")

var ErrInsufficientFunds = errors.New("insufficient funds")

var ErrInsufficientShares = errors.New("insufficient shares")

var ErrNoPosition = errors.New("no position in symbol")

var ErrUsernameTaken = errors.New("username taken")

var ErrAuthFailed = errors.New("authentication failed")

var ErrConflict = errors.New("concurrent update conflict")
