package oracle

import "context"

// Transport sends one prompt pair to a text-generation service and returns
// its raw answer.
type Transport interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f TransportFunc) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
