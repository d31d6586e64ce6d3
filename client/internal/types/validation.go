package types

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ErrEmptyToken is returned when a login is attempted without a credential.
var ErrEmptyToken = errors.New("token must not be empty")

// ValidateToken enforces a non-blank credential token.
func ValidateToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}
	return nil
}

// ValidateUser checks that u is well formed: an identity key is present and
// optional contact fields are syntactically valid.
func ValidateUser(u *User) error {
	if u == nil {
		return errors.New("user is required")
	}
	if err := validatorInstance().Struct(u); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("user.%s failed %q check", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}
