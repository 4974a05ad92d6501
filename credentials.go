package estateauth

import (
	"regexp"
	"strings"
)

// PasswordSymbols are the characters that satisfy the symbol requirement
const PasswordSymbols = "@$!%*?&"

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 8

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// RegisterRequest carries the fields of a registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest carries password login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ValidateEmail checks the local@domain.tld shape
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError("email", "email is required")
	}
	if !emailRegex.MatchString(email) {
		return ValidationError("email", "invalid email format")
	}
	return nil
}

// ValidatePassword enforces length plus one lowercase letter, one uppercase
// letter, one digit and one of PasswordSymbols.
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError("password", "password is required")
	}
	if len([]rune(password)) < MinPasswordLength {
		return ValidationError("password", "password must be at least 8 characters")
	}

	var lower, upper, digit, symbol bool
	for _, c := range password {
		switch {
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= '0' && c <= '9':
			digit = true
		case strings.ContainsRune(PasswordSymbols, c):
			symbol = true
		}
	}
	switch {
	case !lower:
		return ValidationError("password", "password must contain a lowercase letter")
	case !upper:
		return ValidationError("password", "password must contain an uppercase letter")
	case !digit:
		return ValidationError("password", "password must contain a digit")
	case !symbol:
		return ValidationError("password", "password must contain one of "+PasswordSymbols)
	}
	return nil
}

// Validate checks a registration before anything is hashed or stored
func (r *RegisterRequest) Validate() error {
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	return ValidatePassword(r.Password)
}
