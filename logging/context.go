package logging

import (
	"context"

	"go.viam.com/utils"
)

type debugKey struct{}

// EnableDebugMode marks ctx so that the CDebug family logs regardless of level. The key names the
// debug session; an empty key is replaced with a random one.
func EnableDebugMode(ctx context.Context, key string) context.Context {
	if key == "" {
		key = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugKey{}, key)
}

// IsDebugMode reports whether ctx was marked with EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return GetName(ctx) != ""
}

// GetName returns the key ctx was marked with, or "" if it was not.
func GetName(ctx context.Context) string {
	key, _ := ctx.Value(debugKey{}).(string)
	return key
}
