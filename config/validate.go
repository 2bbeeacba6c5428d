package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report yaml key names instead of Go field names
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate runs the struct tag rules and then the cross-field rules the tags
// cannot express: strictly increasing thresholds and a usable strategy.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	for i := 1; i < len(c.CircuitBreakerThresholds); i++ {
		prev, cur := c.CircuitBreakerThresholds[i-1].Level, c.CircuitBreakerThresholds[i].Level
		if cur <= prev {
			return fmt.Errorf("%w: circuit_breaker_thresholds must be strictly increasing (%v after %v)",
				ErrInvalidConfiguration, cur, prev)
		}
	}

	if c.Strategy.Name == "" && c.Strategy.Script != "" {
		return fmt.Errorf("%w: strategy.script needs strategy.name: scripted", ErrInvalidConfiguration)
	}
	return nil
}

// describe turns "Config.run.initial_capital" + "gt" into a readable rule.
func describe(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return ns + " is required"
	case "required_if":
		return fmt.Sprintf("%s is required when %s", ns, strings.Replace(fe.Param(), " ", " is ", 1))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", ns, fe.Param(), fe.Value())
	case "gt", "gte", "lt", "lte":
		ops := map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}
		return fmt.Sprintf("%s must be %s %s, got %v", ns, ops[fe.Tag()], fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s validation", ns, fe.Tag())
}
