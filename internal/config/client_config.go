package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultPollTimeout  = 15 * time.Minute
	DefaultHTTPTimeout  = 30 * time.Second
)

// ClientConfig is the validated connection and polling configuration handed
// to the API client. Treat it as immutable once built.
type ClientConfig struct {
	Username           string        `validate:"required"`
	Secret             string        `validate:"required"`
	Endpoint           string        `validate:"required,url,startswith=http"`
	PollInterval       time.Duration `validate:"gt=0"`
	MaxPollAttempts    uint
	PollTimeout        time.Duration `validate:"gt=0"`
	HTTPTimeout        time.Duration `validate:"gte=0"`
	InsecureSkipVerify bool
	Logging            bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// WithDefaults fills zero durations with the package defaults.
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	return c
}

func (c ClientConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	problems := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return errors.Join(problems...)
}

func describeFieldError(fe validator.FieldError) error {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "url", "startswith":
		return fmt.Errorf("%s must be an absolute http(s) URL", field)
	case "gt":
		return fmt.Errorf("%s must be positive", field)
	case "gte":
		return fmt.Errorf("%s must not be negative", field)
	default:
		return fmt.Errorf("%s failed %q validation", field, fe.Tag())
	}
}

// BuildClientConfig resolves the endpoint from opts, applies defaults and
// validates the result.
func BuildClientConfig(opts Options) (ClientConfig, error) {
	endpoint, err := ResolveEndpoint(opts.Environment, opts.Endpoint)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg := ClientConfig{
		Username:           strings.TrimSpace(opts.Username),
		Secret:             opts.Secret,
		Endpoint:           endpoint,
		PollInterval:       opts.PollInterval,
		MaxPollAttempts:    opts.PollMaxAttempts,
		PollTimeout:        opts.PollTimeout,
		HTTPTimeout:        opts.HTTPTimeout,
		InsecureSkipVerify: opts.InsecureSkipVerify,
		Logging:            opts.Log || opts.Debug || opts.LogPersist,
	}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}
