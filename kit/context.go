// Package kit carries request-scoped values through handler contexts:
// which script instance a message arrived on, the remote address of its
// connection, and the message name being handled. Used by logging and the
// event reporter.
package kit

import "context"

type contextKey string

const (
	InstanceIDKey  contextKey = "ntab_instance_id"
	RemoteAddrKey  contextKey = "ntab_remote_addr"
	MessageNameKey contextKey = "ntab_message_name"
)

func WithInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, InstanceIDKey, id)
}
func GetInstanceID(ctx context.Context) string {
	v, _ := ctx.Value(InstanceIDKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}

func WithMessageName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, MessageNameKey, name)
}
func GetMessageName(ctx context.Context) string {
	v, _ := ctx.Value(MessageNameKey).(string)
	return v
}
