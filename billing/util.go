package billing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
func itoa(i int) string     { return strconv.Itoa(i) }

func errorf(format string, args ...any) error {
	if len(args) == 0 {
		return errors.New(format)
	}
	return fmt.Errorf(format, args...)
}
