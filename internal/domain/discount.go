package domain

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrInvalidDiscountCommand is returned when the input is not "<user id> <discount>".
	ErrInvalidDiscountCommand = errors.New("discount command must be \"<user id> <discount>\"")
	// ErrDiscountOutOfRange is returned for discounts outside [0, 100].
	ErrDiscountOutOfRange = errors.New("discount must be between 0 and 100")
)

// ParseDiscountCommand splits an admin command of exactly two whitespace
// separated tokens into a user id and an integer discount.
func ParseDiscountCommand(text string) (string, int, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", 0, ErrInvalidDiscountCommand
	}

	discount, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, ErrInvalidDiscountCommand
	}
	if !ValidDiscount(discount) {
		return "", 0, ErrDiscountOutOfRange
	}

	return fields[0], discount, nil
}
