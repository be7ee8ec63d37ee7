// Package handler defines request handlers ("scripts") and pools their
// instances per resource path.
//
// Handlers are compiled into the binary and registered in a Catalog under the
// root-relative class name of the file that stands for them, e.g. a request
// for reports/Summary.class runs the handler registered as "reports/Summary"
// (or, failing that, "Summary"). A handler file in a directory root that is
// executable and has no catalog entry runs as a CGI-style subprocess.
package handler

import (
	"context"
	"io"
	"sort"
)

// Handler reads the request body from in and writes a CGI-style response
// (header lines, a blank line, the body) to out. An instance is never used
// by two requests at once.
type Handler interface {
	Service(ctx context.Context, in io.Reader, out io.Writer, env Env) error
}

// Func adapts a function to Handler.
type Func func(ctx context.Context, in io.Reader, out io.Writer, env Env) error

func (f Func) Service(ctx context.Context, in io.Reader, out io.Writer, env Env) error {
	return f(ctx, in, out, env)
}

// Factory constructs a fresh handler instance.
type Factory func() Handler

// Env is the request environment handed to handlers. It is not modified after
// the handler is invoked.
type Env map[string]string

func (e Env) Get(key string) string { return e[key] }

// Keys returns the environment keys in sorted order.
func (e Env) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Invoker runs an in-process request and returns the response body.
type Invoker interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

type invokerKey struct{}

func WithInvoker(ctx context.Context, inv Invoker) context.Context {
	return context.WithValue(ctx, invokerKey{}, inv)
}

// InvokerFrom returns the in-process invoker of the serving request, if any.
func InvokerFrom(ctx context.Context) (Invoker, bool) {
	inv, ok := ctx.Value(invokerKey{}).(Invoker)
	return inv, ok
}
