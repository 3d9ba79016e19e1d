package search

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

const (
	// DefaultLimit is used when a request has no limit.
	DefaultLimit = 50
	// MaxLimit caps the page size.
	MaxLimit = 200
)

// ErrInvalidRequest marks validation failures. Check with eris.Is.
var ErrInvalidRequest = eris.New("search: invalid request")

// Request is a nearby-voters query.
type Request struct {
	Address string `json:"address,omitempty" validate:"omitempty,min=5,max=200"`
	Zip     string `json:"zip,omitempty" validate:"omitempty,len=5,numeric"`
	State   string `json:"state" validate:"required,len=2,alpha"`
	Limit   int    `json:"limit,omitempty" validate:"gte=0"`
	Offset  int    `json:"offset,omitempty" validate:"gte=0"`
}

var validate = validator.New()

// Normalize trims fields, upper-cases the state and applies the limit
// default and cap.
func (r *Request) Normalize() {
	r.Address = strings.TrimSpace(r.Address)
	r.Zip = strings.TrimSpace(r.Zip)
	r.State = strings.ToUpper(strings.TrimSpace(r.State))
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
}

// Validate checks the request. Every failure wraps ErrInvalidRequest.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return eris.Wrap(ErrInvalidRequest, describeValidation(err))
	}
	if r.Address == "" && r.Zip == "" {
		return eris.Wrap(ErrInvalidRequest, "address or zip is required")
	}
	return nil
}

func describeValidation(err error) string {
	var ve validator.ValidationErrors
	if eris.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", strings.ToLower(fe.Field()))
		case "len", "min", "max":
			return fmt.Sprintf("%s must satisfy %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param())
		default:
			return fmt.Sprintf("%s must be %s", strings.ToLower(fe.Field()), fe.Tag())
		}
	}
	return "malformed request"
}
