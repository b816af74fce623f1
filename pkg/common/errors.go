package common

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrorCollector gathers the errors of a multi-step operation so the caller
// can report them as one.
type ErrorCollector struct {
	errs []error
}

func (c *ErrorCollector) Add(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

func (c *ErrorCollector) Addf(format string, args ...interface{}) {
	c.errs = append(c.errs, errors.Errorf(format, args...))
}

func (c *ErrorCollector) HasErrors() bool {
	return len(c.errs) > 0
}

func (c *ErrorCollector) Combine() error {
	if !c.HasErrors() {
		return nil
	}
	return errors.New(c.String())
}

func (c *ErrorCollector) String() string {
	parts := make([]string, 0, len(c.errs))
	for _, err := range c.errs {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}
