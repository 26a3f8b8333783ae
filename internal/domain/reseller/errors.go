package reseller

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientProfit = errors.New("insufficient profit balance")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
)
