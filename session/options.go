package session

// ClientOptions holds resolved configuration for a Client, following the
// teacher's functional-options convention (agentrun.StartOptions/Option,
// engine/cli.EngineOptions/EngineOption).
type ClientOptions struct {
	// EnableHooks turns on the hook callback channel.
	EnableHooks bool

	// HookBuffer sizes the hook callback channel when EnableHooks is set.
	HookBuffer int

	// EnablePermissions turns on the permission callback channel.
	EnablePermissions bool

	// PermissionBuffer sizes the permission callback channel when
	// EnablePermissions is set.
	PermissionBuffer int
}

// ClientOption configures a Client at construction.
type ClientOption func(*ClientOptions)

// WithHookChannel enables the hook callback channel with the given buffer.
func WithHookChannel(buffer int) ClientOption {
	return func(o *ClientOptions) {
		o.EnableHooks = true
		o.HookBuffer = buffer
	}
}

// WithPermissionChannel enables the permission callback channel with the
// given buffer.
func WithPermissionChannel(buffer int) ClientOption {
	return func(o *ClientOptions) {
		o.EnablePermissions = true
		o.PermissionBuffer = buffer
	}
}

func resolveClientOptions(opts ...ClientOption) ClientOptions {
	var o ClientOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
