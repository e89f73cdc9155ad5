package tools

import (
	"context"
	"errors"

	"github.com/petasbytes/toolchat/internal/conversation"
	"github.com/petasbytes/toolchat/internal/safety"
)

type TokenManagerInput struct {
	Operation          string   `json:"operation" validate:"required,oneof=status reset summarize" jsonschema:"enum=status,enum=reset,enum=summarize" jsonschema_description:"status: report (and optionally adjust) the budget. reset: clear the conversation. summarize: condense older turns now."`
	MaxTokens          *int     `json:"max_tokens,omitempty" validate:"omitempty,gt=1000" jsonschema_description:"status: new token budget (> 1000)."`
	WarningThreshold   *float64 `json:"warning_threshold,omitempty" validate:"omitempty,gte=0.1,lte=0.95" jsonschema_description:"status: new warning threshold, fraction of the budget (0.1 to 0.95)."`
	SummarizeThreshold *float64 `json:"summarize_threshold,omitempty" validate:"omitempty,gte=0.2,lte=0.98" jsonschema_description:"status: new summarize threshold, fraction of the budget (0.2 to 0.98), above the warning threshold."`
}

var TokenManagerDefinition = ToolDefinition{
	Name: "token_manager",
	Description: "Inspect and manage the conversation's token budget. Use status to see usage, " +
		"reset to start the conversation over, summarize to condense older turns early.",
	InputSchema: GenerateSchema[TokenManagerInput](),
	Function:    TokenManager,
}

type tokenStatus struct {
	conversation.TokenStatus
	Updated []string `json:"updated,omitempty"`
}

type tokenAction struct {
	Message string                   `json:"message"`
	Status  conversation.TokenStatus `json:"status"`
}

// TokenManager reports or changes the conversation budget in env.Conversation.
func TokenManager(ctx context.Context, env Env, p Params) (any, error) {
	in, err := Decode[TokenManagerInput](p)
	if err != nil {
		return nil, err
	}
	conv := env.Conversation
	if conv == nil {
		return nil, safety.ToolError{Code: safety.CodeToolFailed, Message: "no conversation is attached"}
	}

	switch in.Operation {
	case "status":
		limits := conv.Limits()
		var updated []string
		if in.MaxTokens != nil {
			limits.MaxTokens = *in.MaxTokens
			updated = append(updated, "max_tokens")
		}
		if in.WarningThreshold != nil {
			limits.WarningThreshold = *in.WarningThreshold
			updated = append(updated, "warning_threshold")
		}
		if in.SummarizeThreshold != nil {
			limits.SummarizeThreshold = *in.SummarizeThreshold
			updated = append(updated, "summarize_threshold")
		}
		if len(updated) > 0 {
			if err := conv.SetLimits(limits); err != nil {
				return nil, safety.ToolError{Code: safety.CodeInvalidParam, Message: "summarize_threshold must stay above warning_threshold"}
			}
		}
		return tokenStatus{TokenStatus: conv.TokenStatus(), Updated: updated}, nil

	case "reset":
		conv.Clear()
		return tokenAction{Message: "Conversation history cleared", Status: conv.TokenStatus()}, nil

	case "summarize":
		done, err := conv.Summarize(ctx, env.Summarizer)
		switch {
		case errors.Is(err, conversation.ErrSummaryNotShorter):
			return tokenAction{Message: "Summary was not shorter than the turns it would replace; nothing changed", Status: conv.TokenStatus()}, nil
		case err != nil:
			return nil, err
		case !done:
			return tokenAction{Message: "Not enough earlier conversation to summarize", Status: conv.TokenStatus()}, nil
		}
		return tokenAction{Message: "Earlier conversation summarized", Status: conv.TokenStatus()}, nil
	}
	return nil, safety.ToolError{Code: safety.CodeInvalidParam, Message: "unknown operation: " + in.Operation}
}
