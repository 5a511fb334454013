package event

import "reflect"

// On binds a typed handler under name. It is the generic, type-safe entry
// point applications use instead of Set, which stores an untyped
// interface{}.
func On[F any](c *Container, name string, fn F) {
	c.Set(name, fn)
}

// OnBound stores a partial application of fn against boundArgs, matching the
// source's "on(name, fn, ...bound_args)" behaviour: a zero-arg thunk is
// registered under name that, when retrieved through Call[func()], invokes
// fn with boundArgs as its full argument list. A nil entry in boundArgs binds
// the zero value of fn's corresponding parameter type.
func OnBound[F any](c *Container, name string, fn F, boundArgs ...interface{}) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	args := make([]reflect.Value, len(boundArgs))
	for i, a := range boundArgs {
		if a == nil {
			args[i] = reflect.Zero(ft.In(i))
			continue
		}
		args[i] = reflect.ValueOf(a)
	}
	c.Set(name, func() { fv.Call(args) })
}

// Call looks up name, type-asserts it to F and invokes call with it. It
// returns false if no handler is bound or the stored value is not an F.
// The RUN observer fires after the handler returns, matching the
// "event not re-entrant" guarantee: Call never holds the container lock
// while the handler executes.
func Call[F any](c *Container, name string, call func(fn F)) bool {
	v, ok := c.Get(name)
	if !ok {
		return false
	}
	fn, ok := v.(F)
	if !ok {
		return false
	}
	call(fn)
	c.notifyRun(name)
	return true
}
