// internal/common/validation/domain.go
package validation

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"notification-dispatch/internal/models"

	"github.com/mcnijman/go-emailaddress"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\s\-()]{2,19}$`)

// ValidateEmail reports whether address parses as an e-mail address with a
// non-empty local part and domain.
func ValidateEmail(address string) bool {
	parsed, err := emailaddress.Parse(address)
	if err != nil {
		return false
	}
	return parsed.LocalPart != "" && parsed.Domain != ""
}

// ValidatePhone accepts digits with optional leading + and common separators.
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidateCategory checks the column limits of a category.
func ValidateCategory(c models.Category) *ValidationResult {
	vr := &ValidationResult{Valid: true}
	if c.Name == "" {
		vr.add("name", "REQUIRED", "name is required")
	}
	checkLength(vr, "name", c.Name, models.CategoryNameMaxLength)
	checkLength(vr, "description", c.Description, models.CategoryDescriptionMaxLength)
	return vr
}

// ValidateUser checks the column limits and contact formats of a user.
func ValidateUser(u models.User) *ValidationResult {
	vr := &ValidationResult{Valid: true}
	if u.Name == "" {
		vr.add("name", "REQUIRED", "name is required")
	}
	checkLength(vr, "name", u.Name, models.UserNameMaxLength)
	checkLength(vr, "email", u.Email, models.UserEmailMaxLength)
	if u.Email != "" && !ValidateEmail(u.Email) {
		vr.add("email", "FORMAT", "email is not a valid address")
	}
	if u.PhoneNumber != "" && !ValidatePhone(u.PhoneNumber) {
		vr.add("phoneNumber", "FORMAT", "phone number is not valid")
	}
	return vr
}

// ValidateChannel checks that the kind is known and that a kind-specific
// address, when present, is well formed. Push channels may omit the token.
func ValidateChannel(ch models.Channel) *ValidationResult {
	vr := &ValidationResult{Valid: true}
	if !ch.Kind.Valid() {
		vr.add("type", "ENUM", fmt.Sprintf("unknown channel kind %q", ch.Kind))
		return vr
	}

	switch ch.Kind {
	case models.ChannelKindSMS:
		if phone, ok := ch.PhoneNumber(); ok && !ValidatePhone(string(phone)) {
			vr.add("phoneNumber", "FORMAT", "phone number is not valid")
		}
	case models.ChannelKindEmail:
		if email, ok := ch.EmailAddress(); ok && !ValidateEmail(string(email)) {
			vr.add("emailAddress", "FORMAT", "email is not a valid address")
		}
	}
	return vr
}

func checkLength(vr *ValidationResult, field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		vr.add(field, "MAX_LENGTH", fmt.Sprintf("value must be at most %d characters", max))
	}
}
