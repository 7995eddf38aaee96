package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tasknerd/internal/types"
)

// Field limits.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
)

// ValidateTitle trims and checks a task title.
func ValidateTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", &types.ValidationError{Field: types.FieldTitle, Value: title, Reason: "the title can't be empty"}
	}
	if n := utf8.RuneCountInString(t); n > MaxTitleLength {
		return "", &types.ValidationError{
			Field:  types.FieldTitle,
			Value:  title,
			Reason: fmt.Sprintf("the title is %d characters; the limit is %d", n, MaxTitleLength),
		}
	}
	return t, nil
}

// ValidateDescription trims and checks a description. Empty is allowed.
func ValidateDescription(desc string) (string, error) {
	d := strings.TrimSpace(desc)
	if n := utf8.RuneCountInString(d); n > MaxDescriptionLength {
		return "", &types.ValidationError{
			Field:  types.FieldDescription,
			Value:  desc,
			Reason: fmt.Sprintf("the description is %d characters; the limit is %d", n, MaxDescriptionLength),
		}
	}
	return d, nil
}

// ValidatePriority checks a stored or user-supplied priority value.
func ValidatePriority(value string) (types.Priority, error) {
	if p, ok := types.ParsePriority(value); ok {
		return p, nil
	}
	if s := SuggestPriority(value); s.Certain() {
		return s.Priority, nil
	}
	return "", &types.ValidationError{
		Field:  types.FieldPriority,
		Value:  value,
		Reason: "priority must be high, medium or low",
	}
}

// ValidatePayload re-checks a complete create payload.
func ValidatePayload(p types.TaskPayload) error {
	if _, err := ValidateTitle(p.Title); err != nil {
		return err
	}
	if _, err := ValidateDescription(p.Description); err != nil {
		return err
	}
	if _, err := ValidatePriority(string(p.Priority)); err != nil {
		return err
	}
	return nil
}
