package tools

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
	"github.com/petasbytes/toolchat/internal/conversation"
	"github.com/petasbytes/toolchat/internal/safety"
	"github.com/petasbytes/toolchat/memory"
)

// Params are the decoded parameters of one call.
type Params map[string]any

// Env is what handlers may touch. Nil members disable the tools that need
// them, except Detector: the memory tool falls back to the keyword detector.
type Env struct {
	Memory       memory.Store
	Conversation *conversation.State
	Summarizer   conversation.Summarizer
	Detector     safety.Detector
	// RecentTurns is how many turns store_conversation captures.
	RecentTurns int
}

// Handler runs one call. The returned payload must be JSON-encodable.
type Handler func(ctx context.Context, env Env, p Params) (any, error)

type ToolDefinition struct {
	Name        string                         `json:"name"`
	Description string                         `json:"description"`
	InputSchema anthropic.ToolInputSchemaParam `json:"input_schema"`
	Function    Handler                        `json:"-"`
}

// GenerateSchema derives the input schema of T.
func GenerateSchema[T any]() anthropic.ToolInputSchemaParam {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return anthropic.ToolInputSchemaParam{
		Properties: schema.Properties,
	}
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Decode weakly decodes p into T and validates it. The line-based protocol
// fallback yields strings only, so "true" and "5000" are accepted for bool
// and numeric fields, and a comma-separated string for a list.
func Decode[T any](p Params) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(p)); err != nil {
		return out, safety.ToolError{Code: safety.CodeInvalidParam, Message: err.Error()}
	}
	if err := validate.Struct(out); err != nil {
		return out, validationError(err)
	}
	return out, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return safety.ToolError{Code: safety.CodeInvalidParam, Message: err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_if":
		return safety.ToolError{Code: safety.CodeMissingParam, Message: "missing required parameter: " + fe.Field()}
	case "oneof":
		return safety.ToolError{Code: safety.CodeInvalidParam, Message: fmt.Sprintf("parameter %s must be one of: %s", fe.Field(), fe.Param())}
	default:
		return safety.ToolError{Code: safety.CodeInvalidParam, Message: fmt.Sprintf("parameter %s fails %s=%s", fe.Field(), fe.Tag(), fe.Param())}
	}
}
