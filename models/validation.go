package models

import (
	"fmt"
	"strings"

	apperrors "checkout-service/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks an intent before any remote call is made. A blank address
// line 1 is reported first and always as ErrShippingAddressRequired.
func (o OrderIntent) Validate() error {
	if strings.TrimSpace(o.Address.Line1) == "" {
		return apperrors.ErrShippingAddressRequired
	}
	if strings.TrimSpace(o.ClientID) == "" {
		return apperrors.ErrMissingClient
	}
	if len(o.Items) == 0 {
		return apperrors.ErrEmptyCart
	}
	if err := validate.Struct(o); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.Validation(apperrors.ReasonValidationFailed,
				fmt.Sprintf("validation failed: %s failed on %s", fe.Namespace(), fe.Tag()))
		}
		return apperrors.Validation(apperrors.ReasonValidationFailed, "validation failed: "+err.Error())
	}
	return nil
}
