package collections

import (
	"fmt"
	"strings"
)

// StringSlice is a flag.Value that accumulates the values of a repeated
// flag.
type StringSlice []string

func (i *StringSlice) String() string {
	return strings.Join(*i, ",")
}

// Set implements the flag.Value interface.  Values are kept verbatim since
// glob patterns may contain commas ("*.{star,starc}").
func (i *StringSlice) Set(value string) error {
	if value == "" {
		return fmt.Errorf("empty value")
	}
	*i = append(*i, value)
	return nil
}
