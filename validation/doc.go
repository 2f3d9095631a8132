// Package validation checks configuration and effect parameters and reports
// problems as INVALID_CONFIG errors.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection.
//
// # Struct Tag Validation
//
//	type resampleParams struct {
//	    Rate    float64 `validate:"gt=0"`
//	    Quality string  `validate:"oneof=QQ LQ MQ HQ VHQ"`
//	}
//	err := validation.Validate(params)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Custom(len(inputs) == len(outputs), "outputs", "must match inputs in length")
//	err := v.Validate()
package validation
