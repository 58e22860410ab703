package match

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParam    = errors.New("the param is invalid")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidSide     = errors.New("side must be buy or sell")
	ErrSequenceGap     = errors.New("book log sequence gap")

	ErrQuantityTooLarge = fmt.Errorf("%w: at most %d", ErrInvalidQuantity, MaxOrderQty)
)
