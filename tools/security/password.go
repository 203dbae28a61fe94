package security

import (
	"PPDirect/tools/errs"

	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
)

const (
	PasswordMinEntropyBits = 50
	bcryptCost             = 12
)

// ValidatePassword rejects passwords below the entropy floor.
func ValidatePassword(password string) error {
	if err := passwordvalidator.Validate(password, PasswordMinEntropyBits); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	return nil
}

func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, bcryptCost)
}

func HashPasswordCost(password string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errs.WrapMsg(err, "hash password")
	}
	return string(b), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
