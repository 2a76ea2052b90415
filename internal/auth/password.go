package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultHashCost matches the cost used for existing password hashes.
	DefaultHashCost   = 12
	minPasswordLength = 8
	specialCharacters = `!@#$%^&*(),.?":{}|<>`
)

// PasswordError reports which registration rule a password broke.
// Message is shown to the user as-is.
type PasswordError struct {
	Message string
}

func (e *PasswordError) Error() string {
	return e.Message
}

var ErrInvalidPassword = errors.New("invalid credentials")

// ValidatePassword checks the registration password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return &PasswordError{Message: "La contraseña debe tener al menos 8 caracteres"}
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
		if strings.ContainsRune(specialCharacters, r) {
			special = true
		}
	}

	switch {
	case !upper:
		return &PasswordError{Message: "La contraseña debe tener al menos una mayúscula"}
	case !lower:
		return &PasswordError{Message: "La contraseña debe tener al menos una minúscula"}
	case !digit:
		return &PasswordError{Message: "La contraseña debe tener al menos un número"}
	case !special:
		return &PasswordError{Message: "La contraseña debe tener al menos un caracter especial"}
	}
	return nil
}

func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}
