package swap

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrSameToken           = errors.New("cannot swap a token for itself")
	ErrUnknownToken        = errors.New("unknown token")
	ErrRouting             = errors.New("no viable route for token pair")
	ErrNoLiquidity         = errors.New("no liquidity on required book side")
	ErrBookUnavailable     = errors.New("order book not built")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
)
