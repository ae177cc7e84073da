package review

import (
	"errors"
	"fmt"
	"strings"

	"github.com/860844175/review-system/pkg/cerr"
)

var ErrMissingParameter = errors.New("missing parameter")

type field struct {
	name, value string
}

// requireFields fails with one violation per empty field.
func requireFields(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	e := cerr.NewError(cerr.InvalidArgument,
		fmt.Sprintf("missing %s", strings.Join(missing, ", ")),
		fmt.Errorf("%w: %s", ErrMissingParameter, strings.Join(missing, ", ")))
	for _, name := range missing {
		e.AddViolation("required", name+" is required")
	}
	return e
}
