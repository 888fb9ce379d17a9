package vm

import (
	"context"

	"github.com/deepnoodle-ai/pyxlate/builtins"
	"github.com/deepnoodle-ai/pyxlate/bytecode"
	modMath "github.com/deepnoodle-ai/pyxlate/modules/math"
	"github.com/deepnoodle-ai/pyxlate/object"
)

// Run the given module code in a new Virtual Machine and return the result.
func Run(ctx context.Context, main *bytecode.Code, options ...Option) (object.Object, error) {
	return New(options...).RunCode(ctx, main, nil)
}

// NativeModules returns the modules every VM serves without a host.
func NativeModules() map[string]object.Object {
	return map[string]object.Object{
		"builtins": builtins.Module(),
		"math":     modMath.Module(),
	}
}
