package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

// CodeDigits is the length of verification and reset codes.
const CodeDigits = 6

var (
	codeFloor = big.NewInt(100000)
	codeSpan  = big.NewInt(900000)
)

// NewNumericCode returns a 6-digit code drawn uniformly from 100000–999999 using
// crypto/rand. Codes never start with zero, so they survive numeric form fields intact.
func NewNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", err
	}
	n.Add(n, codeFloor)

	code := n.String()
	if len(code) != CodeDigits {
		return "", errors.New("invalid code generation length")
	}
	return code, nil
}

// IsNumericCode reports whether s has the shape of a generated code.
func IsNumericCode(s string) bool {
	if len(s) != CodeDigits || s[0] == '0' {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 32)
	return err == nil
}
