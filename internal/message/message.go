// Package message defines the chat message exchanged between clients and
// its wire form.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrDecode     = errors.New("malformed message")
	ErrValidation = errors.New("invalid message")
)

// Message is a single chat line. Once accepted it is never mutated.
type Message struct {
	User string `json:"user" bson:"user" validate:"required"`
	Text string `json:"text" bson:"text" validate:"required"`
}

// ValidationError lists the required fields that were empty or missing.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: empty %s", ErrValidation, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode parses raw as a JSON object and validates it. Unknown fields are
// ignored; a missing field counts as empty.
func Decode(raw []byte) (Message, error) {
	// Unmarshal accepts null into a struct; only an object is a message.
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, fmt.Errorf("%w: payload is not a JSON object", ErrDecode)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := Validate(msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Validate checks the required fields of msg.
func Validate(msg Message) error {
	err := validate.Struct(msg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
	}
	return &ValidationError{Fields: fields}
}

// Encode returns the frame broadcast to every connection.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

type errorFrame struct {
	Error string `json:"error"`
}

// ErrorFrame builds the frame sent back to a connection whose submission was
// rejected.
func ErrorFrame(reason string) []byte {
	b, mErr := json.Marshal(errorFrame{Error: reason})
	if mErr != nil {
		return []byte(`{"error":"message rejected"}`)
	}
	return b
}
