package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/petasbytes/toolchat/internal/safety"
	"github.com/petasbytes/toolchat/memory"
)

// DefaultRecentTurns is how many turns store_conversation captures when Env leaves it unset.
const DefaultRecentTurns = 6

type MemoryInput struct {
	Operation             string   `json:"operation" validate:"required,oneof=store retrieve search delete list" jsonschema:"enum=store,enum=retrieve,enum=search,enum=delete,enum=list" jsonschema_description:"What to do."`
	Content               string   `json:"content,omitempty" jsonschema_description:"store: the text to remember."`
	Key                   string   `json:"key,omitempty" validate:"required_if=Operation retrieve,required_if=Operation delete" jsonschema_description:"store: optional key (generated when empty). retrieve/delete: the key."`
	Query                 string   `json:"query,omitempty" jsonschema_description:"search: words or phrase to look for."`
	Tags                  []string `json:"tags,omitempty" jsonschema_description:"store: labels. search/list: filter by label."`
	Limit                 int      `json:"limit,omitempty" validate:"gte=0" jsonschema_description:"search: maximum results (0 = all)."`
	Overwrite             bool     `json:"overwrite,omitempty" jsonschema_description:"store: replace an existing key."`
	StoreConversation     bool     `json:"store_conversation,omitempty" jsonschema_description:"store: remember the recent conversation instead of content."`
	HasExplicitPermission bool     `json:"has_explicit_permission,omitempty" jsonschema_description:"store: the user explicitly allowed remembering personal information."`
}

var MemoryDefinition = ToolDefinition{
	Name: "memory",
	Description: "Long-term memory that persists across sessions. Store facts worth keeping, retrieve them by key, " +
		"search by words or tags, list what is stored, delete stale entries. Personal information (preferences, " +
		"details about the user or their team) is only stored after the user explicitly agrees; pass " +
		"has_explicit_permission=true once they have.",
	InputSchema: GenerateSchema[MemoryInput](),
	Function:    Memory,
}

type memoryStored struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

type memoryFound struct {
	Count   int              `json:"count"`
	Results []memory.Summary `json:"results"`
}

type memoryDeleted struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

// Memory runs one memory operation against env.Memory.
func Memory(ctx context.Context, env Env, p Params) (any, error) {
	in, err := Decode[MemoryInput](p)
	if err != nil {
		return nil, err
	}
	if env.Memory == nil {
		return nil, safety.ToolError{Code: safety.CodeToolFailed, Message: "memory is not configured"}
	}

	switch in.Operation {
	case "store":
		return storeMemory(ctx, env, in)
	case "retrieve":
		return env.Memory.Retrieve(ctx, in.Key)
	case "search":
		res, err := env.Memory.Search(ctx, memory.Query{Text: in.Query, Tags: in.Tags, Limit: in.Limit})
		if err != nil {
			return nil, err
		}
		return memoryFound{Count: len(res), Results: res}, nil
	case "delete":
		if err := env.Memory.Delete(ctx, in.Key); err != nil {
			return nil, err
		}
		return memoryDeleted{Key: in.Key, Deleted: true}, nil
	case "list":
		tag := ""
		if len(in.Tags) > 0 {
			tag = in.Tags[0]
		}
		res, err := env.Memory.List(ctx, tag)
		if err != nil {
			return nil, err
		}
		return memoryFound{Count: len(res), Results: res}, nil
	}
	return nil, safety.ToolError{Code: safety.CodeInvalidParam, Message: "unknown operation: " + in.Operation}
}

func storeMemory(ctx context.Context, env Env, in MemoryInput) (any, error) {
	content := in.Content
	if in.StoreConversation {
		if env.Conversation == nil {
			return nil, safety.ToolError{Code: safety.CodeToolFailed, Message: "no conversation to store"}
		}
		n := env.RecentTurns
		if n <= 0 {
			n = DefaultRecentTurns
		}
		content = env.Conversation.RecentText(n)
	}
	if strings.TrimSpace(content) == "" {
		return nil, safety.ToolError{Code: safety.CodeMissingParam, Message: "missing required parameter: content"}
	}

	// The gate looks at exactly what will be written.
	if detector(env).Personal(content) && !in.HasExplicitPermission {
		return nil, safety.ToolError{
			Code: safety.CodePermissionRequired,
			Message: "content looks like personal information; ask the user for explicit permission, " +
				"then retry with has_explicit_permission=true",
		}
	}

	key, err := env.Memory.Store(ctx, memory.StoreRequest{
		Content:       content,
		Key:           in.Key,
		Tags:          in.Tags,
		Overwrite:     in.Overwrite,
		HadPermission: in.HasExplicitPermission,
	})
	if err != nil {
		return nil, err
	}
	return memoryStored{Key: key, Message: fmt.Sprintf("Memory stored with key: %s", key)}, nil
}

var defaultDetector = safety.NewKeywordDetector()

// detector is env.Detector, or the keyword detector when none is set.
func detector(env Env) safety.Detector {
	if env.Detector == nil {
		return defaultDetector
	}
	return env.Detector
}
