package tools

import "context"

// Invocation carries the Discord coordinates of the message that started the
// current agent run. Tools that act on "this channel" or "this guild" read
// it from the context.
type Invocation struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
}

type invocationKey struct{}

func WithInvocation(ctx context.Context, inv Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

func InvocationFrom(ctx context.Context) Invocation {
	inv, _ := ctx.Value(invocationKey{}).(Invocation)
	return inv
}
