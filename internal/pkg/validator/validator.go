package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dataplug/dataplug-api/internal/pkg/phone"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Buyer role validation
	validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		role := fl.Field().String()
		validRoles := []string{"customer", "agent", "dealer", "super_dealer", "master", "admin"}
		for _, r := range validRoles {
			if role == r {
				return true
			}
		}
		return false
	})

	// Supported mobile networks
	validate.RegisterValidation("network", func(fl validator.FieldLevel) bool {
		network := fl.Field().String()
		validNetworks := []string{"MTN", "TELECEL", "AT", "AIRTELTIGO"}
		for _, n := range validNetworks {
			if network == n {
				return true
			}
		}
		return false
	})

	// Ghanaian MSISDN in any accepted form
	validate.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return phone.Valid(fl.Field().String())
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "role":
			errors[field] = "Invalid role. Must be: customer, agent, dealer, super_dealer, master, or admin"
		case "network":
			errors[field] = "Invalid network. Must be: MTN, TELECEL, AT, or AIRTELTIGO"
		case "msisdn":
			errors[field] = "Invalid phone number"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
