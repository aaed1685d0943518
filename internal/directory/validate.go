package directory

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}(?:\.[a-zA-Z]{2,})*$`)
	phonePattern    = regexp.MustCompile(`^\d{10}$`)
	postcodePattern = regexp.MustCompile(`^\d{5}$`)
	ssnPattern      = regexp.MustCompile(`^\d{9}$`)
	passwordLetter  = regexp.MustCompile(`[A-Za-z]`)
	passwordDigit   = regexp.MustCompile(`\d`)
	passwordSpecial = regexp.MustCompile(`[!@#$%^&*]`)
)

// FieldError is one validation failure surfaced to clients.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field failures for one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AddressInput is the closed address shape accepted from clients.
type AddressInput struct {
	City     string `json:"city"`
	Street   string `json:"street"`
	Number   string `json:"number"`
	Postcode string `json:"postcode"`
}

// RegisterInput is the closed registration shape. Unknown JSON keys are
// rejected at decode time; nothing unvalidated reaches policy or storage.
type RegisterInput struct {
	Username    string       `json:"username"`
	Email       string       `json:"email"`
	Password    string       `json:"password"`
	Firstname   string       `json:"firstname"`
	Lastname    string       `json:"lastname"`
	PhoneNumber string       `json:"phoneNumber"`
	Address     AddressInput `json:"address"`
	SSN         string       `json:"ssn"`
}

// CreateInput extends registration with an explicit role; who may set
// which role is the policy's decision, not validation's.
type CreateInput struct {
	RegisterInput
	Role string `json:"role"`
}

// UpdateInput is a partial profile update; nil fields are untouched.
type UpdateInput struct {
	Username    *string       `json:"username"`
	Email       *string       `json:"email"`
	Firstname   *string       `json:"firstname"`
	Lastname    *string       `json:"lastname"`
	PhoneNumber *string       `json:"phoneNumber"`
	Address     *AddressInput `json:"address"`
	SSN         *string       `json:"ssn"`
}

// LoginInput is the closed login shape.
type LoginInput struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// ChangePasswordInput carries a password rotation request.
type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Normalize trims every field in place.
func (in *RegisterInput) Normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Password = strings.TrimSpace(in.Password)
	in.Firstname = strings.TrimSpace(in.Firstname)
	in.Lastname = strings.TrimSpace(in.Lastname)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Address.City = strings.TrimSpace(in.Address.City)
	in.Address.Street = strings.TrimSpace(in.Address.Street)
	in.Address.Number = strings.TrimSpace(in.Address.Number)
	in.Address.Postcode = strings.TrimSpace(in.Address.Postcode)
	in.SSN = strings.TrimSpace(in.SSN)
}

// Validate checks every field and returns the full failure list.
func (in *RegisterInput) Validate() []FieldError {
	in.Normalize()
	var errs []FieldError

	errs = appendLengthError(errs, "username", in.Username, 2, 20)
	if !emailPattern.MatchString(in.Email) {
		errs = append(errs, FieldError{"email", "invalid email format"})
	}
	errs = append(errs, validatePassword("password", in.Password)...)
	errs = appendLengthError(errs, "firstname", in.Firstname, 2, 50)
	errs = appendLengthError(errs, "lastname", in.Lastname, 2, 50)
	if !phonePattern.MatchString(in.PhoneNumber) {
		errs = append(errs, FieldError{"phoneNumber", "phone number must be exactly 10 digits"})
	}
	errs = append(errs, in.Address.validate()...)
	if !ssnPattern.MatchString(in.SSN) {
		errs = append(errs, FieldError{"ssn", "SSN must be exactly 9 digits"})
	}
	return errs
}

func (a *AddressInput) validate() []FieldError {
	var errs []FieldError
	errs = appendLengthError(errs, "address.city", a.City, 2, 50)
	if len(a.Street) == 0 || len(a.Street) > 50 {
		errs = append(errs, FieldError{"address.street", "street must be between 1 and 50 characters"})
	}
	if len(a.Number) == 0 || len(a.Number) > 10 {
		errs = append(errs, FieldError{"address.number", "street number must be between 1 and 10 characters"})
	}
	if !postcodePattern.MatchString(a.Postcode) {
		errs = append(errs, FieldError{"address.postcode", "postcode must be exactly 5 digits"})
	}
	return errs
}

// Validate checks only the fields present in the partial update.
func (in *UpdateInput) Validate() []FieldError {
	var errs []FieldError
	if in.Username != nil {
		*in.Username = strings.TrimSpace(*in.Username)
		errs = appendLengthError(errs, "username", *in.Username, 2, 20)
	}
	if in.Email != nil {
		*in.Email = strings.ToLower(strings.TrimSpace(*in.Email))
		if !emailPattern.MatchString(*in.Email) {
			errs = append(errs, FieldError{"email", "invalid email format"})
		}
	}
	if in.Firstname != nil {
		*in.Firstname = strings.TrimSpace(*in.Firstname)
		errs = appendLengthError(errs, "firstname", *in.Firstname, 2, 50)
	}
	if in.Lastname != nil {
		*in.Lastname = strings.TrimSpace(*in.Lastname)
		errs = appendLengthError(errs, "lastname", *in.Lastname, 2, 50)
	}
	if in.PhoneNumber != nil {
		*in.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
		if !phonePattern.MatchString(*in.PhoneNumber) {
			errs = append(errs, FieldError{"phoneNumber", "phone number must be exactly 10 digits"})
		}
	}
	if in.Address != nil {
		in.Address.City = strings.TrimSpace(in.Address.City)
		in.Address.Street = strings.TrimSpace(in.Address.Street)
		in.Address.Number = strings.TrimSpace(in.Address.Number)
		in.Address.Postcode = strings.TrimSpace(in.Address.Postcode)
		errs = append(errs, in.Address.validate()...)
	}
	if in.SSN != nil {
		*in.SSN = strings.TrimSpace(*in.SSN)
		if !ssnPattern.MatchString(*in.SSN) {
			errs = append(errs, FieldError{"ssn", "SSN must be exactly 9 digits"})
		}
	}
	return errs
}

// Empty reports whether the update touches nothing.
func (in *UpdateInput) Empty() bool {
	return in.Username == nil && in.Email == nil && in.Firstname == nil &&
		in.Lastname == nil && in.PhoneNumber == nil && in.Address == nil && in.SSN == nil
}

// Validate checks the login identifier and password shape. Failures here
// are validation errors; credential mismatches are authentication errors.
func (in *LoginInput) Validate() []FieldError {
	in.UsernameOrEmail = strings.TrimSpace(in.UsernameOrEmail)
	in.Password = strings.TrimSpace(in.Password)

	var errs []FieldError
	id := in.UsernameOrEmail
	if !emailPattern.MatchString(id) && (len(id) < 2 || len(id) > 20) {
		errs = append(errs, FieldError{"usernameOrEmail", "must be a valid email or a username between 2 and 20 characters"})
	}
	errs = append(errs, validatePassword("password", in.Password)...)
	return errs
}

// Validate checks the new password's strength.
func (in *ChangePasswordInput) Validate() []FieldError {
	in.OldPassword = strings.TrimSpace(in.OldPassword)
	in.NewPassword = strings.TrimSpace(in.NewPassword)

	var errs []FieldError
	if in.OldPassword == "" {
		errs = append(errs, FieldError{"oldPassword", "old password is required"})
	}
	errs = append(errs, validatePassword("newPassword", in.NewPassword)...)
	return errs
}

func validatePassword(field, password string) []FieldError {
	var errs []FieldError
	if len(password) < 8 {
		errs = append(errs, FieldError{field, "password must be at least 8 characters"})
		return errs
	}
	if !passwordLetter.MatchString(password) || !passwordDigit.MatchString(password) || !passwordSpecial.MatchString(password) {
		errs = append(errs, FieldError{field, "password must contain at least one letter, one number, and one special character (!@#$%^&*)"})
	}
	return errs
}

func appendLengthError(errs []FieldError, field, value string, min, max int) []FieldError {
	if len(value) < min || len(value) > max {
		errs = append(errs, FieldError{field, fmt.Sprintf("%s must be between %d and %d characters", field, min, max)})
	}
	return errs
}
