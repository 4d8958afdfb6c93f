package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/go-playground/validator/v10"
)

// Payload schemas. Unknown fields are tolerated so older servers accept
// payloads from newer clients; only the listed fields are checked.

type teamPayload struct {
	Name  string `json:"name" validate:"required,max=100"`
	Sport string `json:"sport" validate:"omitempty,max=50"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

type playerPayload struct {
	Name         string `json:"name" validate:"required,max=100"`
	Phone        string `json:"phone" validate:"omitempty,phone"`
	Email        string `json:"email" validate:"omitempty,email"`
	JerseyNumber *int   `json:"jerseyNumber" validate:"omitempty,min=0,max=999"`
	Position     string `json:"position" validate:"omitempty,max=50"`
}

type memberPayload struct {
	Name  string `json:"name" validate:"required,max=100"`
	Role  string `json:"role" validate:"omitempty,oneof=coach manager staff parent player"`
	Phone string `json:"phone" validate:"omitempty,phone"`
	Email string `json:"email" validate:"omitempty,email"`
}

type eventPayload struct {
	Title    string `json:"title" validate:"required,max=200"`
	StartsAt string `json:"startsAt" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Location string `json:"location" validate:"omitempty,max=200"`
}

type matchPayload struct {
	Opponent  string   `json:"opponent" validate:"required,max=100"`
	StartsAt  string   `json:"startsAt" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	HomeScore *int     `json:"homeScore" validate:"omitempty,min=0"`
	AwayScore *int     `json:"awayScore" validate:"omitempty,min=0"`
	Roster    []string `json:"roster" validate:"omitempty,dive,required"`
}

var phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{1,19}$`)

// PayloadValidator checks mutation payloads against the per-entity schemas.
type PayloadValidator struct {
	v *validator.Validate
}

func NewPayloadValidator() *PayloadValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	return &PayloadValidator{v: v}
}

func schemaFor(e models.EntityType) (any, error) {
	switch e {
	case models.EntityTeam:
		return &teamPayload{}, nil
	case models.EntityPlayer:
		return &playerPayload{}, nil
	case models.EntityMember:
		return &memberPayload{}, nil
	case models.EntityEvent:
		return &eventPayload{}, nil
	case models.EntityMatch:
		return &matchPayload{}, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", e)
}

// Validate returns a *ValidationError when payload is not a JSON object or
// violates the schema of entity e.
func (p *PayloadValidator) Validate(e models.EntityType, payload json.RawMessage) error {
	schema, err := schemaFor(e)
	if err != nil {
		return newValidationError("entity", err.Error())
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return newValidationError("data", "must be a JSON object")
	}
	if err := json.Unmarshal(trimmed, schema); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return newValidationError(typeErr.Field, "must be "+typeErr.Type.String())
		}
		return newValidationError("data", "malformed JSON")
	}

	if err := p.v.Struct(schema); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return newValidationError("data", err.Error())
		}
		out := &ValidationError{Fields: make(map[string]string, len(verrs))}
		for _, fe := range verrs {
			out.Fields[fieldPath(fe)] = describe(fe)
		}
		return out
	}
	return nil
}

// fieldPath strips the schema struct name from the namespace, leaving e.g.
// "roster[2]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "phone":
		return "is not a valid phone number"
	case "email":
		return "is not a valid email address"
	case "hexcolor":
		return "is not a hex color"
	case "datetime":
		return "must be an RFC3339 timestamp"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "failed " + fe.Tag()
}
