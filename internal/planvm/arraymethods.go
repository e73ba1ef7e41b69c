package planvm

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// applyArrayMutator computes the result of one of arrayMutatingMethods
// applied to arr, returning the rewritten slice and the method's
// return value (matching JS semantics: push/unshift return the new
// length, pop/shift return the removed element, sort/reverse/splice
// return the mutated array/removed slice).
func (in *Interp) applyArrayMutator(ctx context.Context, f *fiber, arr []Value, method string, args []Value) ([]Value, Value, error) {
	switch method {
	case "push":
		out := append(append([]Value{}, arr...), args...)
		return out, float64(len(out)), nil
	case "pop":
		if len(arr) == 0 {
			return arr, nil, nil
		}
		out := arr[:len(arr)-1]
		return out, arr[len(arr)-1], nil
	case "shift":
		if len(arr) == 0 {
			return arr, nil, nil
		}
		return arr[1:], arr[0], nil
	case "unshift":
		out := append(append([]Value{}, args...), arr...)
		return out, float64(len(out)), nil
	case "reverse":
		out := make([]Value, len(arr))
		for i, v := range arr {
			out[len(arr)-1-i] = v
		}
		return out, out, nil
	case "sort":
		out := append([]Value{}, arr...)
		var cbErr error
		var cb *closureValue
		if len(args) > 0 {
			cb, _ = args[0].(*closureValue)
		}
		sort.SliceStable(out, func(i, j int) bool {
			if cbErr != nil {
				return false
			}
			if cb != nil {
				v, err := in.callClosure(ctx, f, cb, []Value{out[i], out[j]})
				if err != nil {
					cbErr = err
					return false
				}
				return toNumber(v) < 0
			}
			return stringifyValue(out[i]) < stringifyValue(out[j])
		})
		if cbErr != nil {
			return arr, nil, cbErr
		}
		return out, out, nil
	case "splice":
		start := 0
		if len(args) > 0 {
			start = clampIndex(int(toNumber(args[0])), len(arr))
		}
		deleteCount := len(arr) - start
		if len(args) > 1 {
			deleteCount = int(toNumber(args[1]))
		}
		if deleteCount < 0 {
			deleteCount = 0
		}
		if start+deleteCount > len(arr) {
			deleteCount = len(arr) - start
		}
		removed := append([]Value{}, arr[start:start+deleteCount]...)
		var insert []Value
		if len(args) > 2 {
			insert = args[2:]
		}
		out := append([]Value{}, arr[:start]...)
		out = append(out, insert...)
		out = append(out, arr[start+deleteCount:]...)
		return out, removed, nil
	}
	return arr, nil, fmt.Errorf("planvm: unsupported array method %q", method)
}

func clampIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}

func asClosureCallback(v Value, method string) (*closureValue, error) {
	c, ok := v.(*closureValue)
	if !ok {
		return nil, fmt.Errorf("planvm: %s requires a callback function", method)
	}
	return c, nil
}

// arrayMethod returns the non-mutating array helper named key bound to
// v, or nil when key names no supported method.
func (in *Interp) arrayMethod(v []Value, key string) Value {
	builtin := func(fn func(ctx context.Context, f *fiber, args []Value) (Value, error)) *builtinValue {
		return &builtinValue{name: key, fn: fn}
	}

	switch key {
	case "map":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("planvm: map requires a callback")
			}
			cb, err := asClosureCallback(args[0], "map")
			if err != nil {
				return nil, err
			}
			out := make([]Value, len(v))
			for i, item := range v {
				r, err := in.callClosure(ctx, f, cb, []Value{item, float64(i)})
				if err != nil {
					return nil, err
				}
				out[i] = r
			}
			return out, nil
		})
	case "filter":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("planvm: filter requires a callback")
			}
			cb, err := asClosureCallback(args[0], "filter")
			if err != nil {
				return nil, err
			}
			var out []Value
			for i, item := range v {
				r, err := in.callClosure(ctx, f, cb, []Value{item, float64(i)})
				if err != nil {
					return nil, err
				}
				if truthy(r) {
					out = append(out, item)
				}
			}
			return out, nil
		})
	case "forEach":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("planvm: forEach requires a callback")
			}
			cb, err := asClosureCallback(args[0], "forEach")
			if err != nil {
				return nil, err
			}
			for i, item := range v {
				if _, err := in.callClosure(ctx, f, cb, []Value{item, float64(i)}); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
	case "find":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("planvm: find requires a callback")
			}
			cb, err := asClosureCallback(args[0], "find")
			if err != nil {
				return nil, err
			}
			for i, item := range v {
				r, err := in.callClosure(ctx, f, cb, []Value{item, float64(i)})
				if err != nil {
					return nil, err
				}
				if truthy(r) {
					return item, nil
				}
			}
			return nil, nil
		})
	case "some":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("planvm: some requires a callback")
			}
			cb, err := asClosureCallback(args[0], "some")
			if err != nil {
				return nil, err
			}
			for i, item := range v {
				r, err := in.callClosure(ctx, f, cb, []Value{item, float64(i)})
				if err != nil {
					return nil, err
				}
				if truthy(r) {
					return true, nil
				}
			}
			return false, nil
		})
	case "every":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("planvm: every requires a callback")
			}
			cb, err := asClosureCallback(args[0], "every")
			if err != nil {
				return nil, err
			}
			for i, item := range v {
				r, err := in.callClosure(ctx, f, cb, []Value{item, float64(i)})
				if err != nil {
					return nil, err
				}
				if !truthy(r) {
					return false, nil
				}
			}
			return true, nil
		})
	case "reduce":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("planvm: reduce requires a callback")
			}
			cb, err := asClosureCallback(args[0], "reduce")
			if err != nil {
				return nil, err
			}
			items := v
			var acc Value
			start := 0
			if len(args) > 1 {
				acc = args[1]
			} else {
				if len(items) == 0 {
					return nil, fmt.Errorf("planvm: reduce of empty array with no initial value")
				}
				acc = items[0]
				start = 1
			}
			for i := start; i < len(items); i++ {
				r, err := in.callClosure(ctx, f, cb, []Value{acc, items[i], float64(i)})
				if err != nil {
					return nil, err
				}
				acc = r
			}
			return acc, nil
		})
	case "includes":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			if len(args) == 0 {
				return false, nil
			}
			for _, item := range v {
				if strictEquals(item, args[0]) {
					return true, nil
				}
			}
			return false, nil
		})
	case "indexOf":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			if len(args) == 0 {
				return float64(-1), nil
			}
			for i, item := range v {
				if strictEquals(item, args[0]) {
					return float64(i), nil
				}
			}
			return float64(-1), nil
		})
	case "join":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			sep := ","
			if len(args) > 0 {
				sep = stringifyValue(args[0])
			}
			parts := make([]string, len(v))
			for i, item := range v {
				if item == nil {
					continue
				}
				parts[i] = stringifyValue(item)
			}
			return strings.Join(parts, sep), nil
		})
	case "slice":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			start, end := 0, len(v)
			if len(args) > 0 {
				start = clampIndex(int(toNumber(args[0])), len(v))
			}
			if len(args) > 1 {
				end = clampIndex(int(toNumber(args[1])), len(v))
			}
			if end < start {
				end = start
			}
			return append([]Value{}, v[start:end]...), nil
		})
	case "concat":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			out := append([]Value{}, v...)
			for _, a := range args {
				if list, ok := a.([]Value); ok {
					out = append(out, list...)
					continue
				}
				out = append(out, a)
			}
			return out, nil
		})
	case "flat":
		return builtin(func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			var out []Value
			for _, item := range v {
				if list, ok := item.([]Value); ok {
					out = append(out, list...)
					continue
				}
				out = append(out, item)
			}
			return out, nil
		})
	}
	return nil
}

// stringMethod returns the string helper named key bound to v, or nil
// when key names no supported method. Unlike arrayMethod these never
// need the interpreter, since no string method here takes a plan
// callback.
func stringMethod(v string, key string) Value {
	builtin := func(fn func(args []Value) (Value, error)) *builtinValue {
		return &builtinValue{name: key, fn: func(ctx context.Context, f *fiber, args []Value) (Value, error) {
			return fn(args)
		}}
	}
	arg := func(args []Value, i int) string {
		if i < len(args) {
			return stringifyValue(args[i])
		}
		return ""
	}

	switch key {
	case "toUpperCase":
		return builtin(func(args []Value) (Value, error) { return strings.ToUpper(v), nil })
	case "toLowerCase":
		return builtin(func(args []Value) (Value, error) { return strings.ToLower(v), nil })
	case "trim":
		return builtin(func(args []Value) (Value, error) { return strings.TrimSpace(v), nil })
	case "split":
		return builtin(func(args []Value) (Value, error) {
			sep := arg(args, 0)
			var parts []string
			if sep == "" {
				parts = strings.Split(v, "")
			} else {
				parts = strings.Split(v, sep)
			}
			out := make([]Value, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		})
	case "includes":
		return builtin(func(args []Value) (Value, error) { return strings.Contains(v, arg(args, 0)), nil })
	case "indexOf":
		return builtin(func(args []Value) (Value, error) { return float64(strings.Index(v, arg(args, 0))), nil })
	case "startsWith":
		return builtin(func(args []Value) (Value, error) { return strings.HasPrefix(v, arg(args, 0)), nil })
	case "endsWith":
		return builtin(func(args []Value) (Value, error) { return strings.HasSuffix(v, arg(args, 0)), nil })
	case "replace":
		return builtin(func(args []Value) (Value, error) {
			return strings.Replace(v, arg(args, 0), arg(args, 1), 1), nil
		})
	case "replaceAll":
		return builtin(func(args []Value) (Value, error) {
			return strings.ReplaceAll(v, arg(args, 0), arg(args, 1)), nil
		})
	case "repeat":
		return builtin(func(args []Value) (Value, error) {
			n := 0
			if len(args) > 0 {
				n = int(toNumber(args[0]))
			}
			if n < 0 {
				return nil, fmt.Errorf("planvm: repeat count must not be negative")
			}
			return strings.Repeat(v, n), nil
		})
	case "charAt":
		return builtin(func(args []Value) (Value, error) {
			i := 0
			if len(args) > 0 {
				i = int(toNumber(args[0]))
			}
			if i < 0 || i >= len(v) {
				return "", nil
			}
			return string(v[i]), nil
		})
	case "slice", "substring":
		return builtin(func(args []Value) (Value, error) {
			start, end := 0, len(v)
			if len(args) > 0 {
				start = clampIndex(int(toNumber(args[0])), len(v))
			}
			if len(args) > 1 {
				end = clampIndex(int(toNumber(args[1])), len(v))
			}
			if end < start {
				if key == "substring" {
					start, end = end, start
				} else {
					end = start
				}
			}
			return v[start:end], nil
		})
	case "padStart":
		return builtin(func(args []Value) (Value, error) {
			target := 0
			if len(args) > 0 {
				target = int(toNumber(args[0]))
			}
			pad := " "
			if len(args) > 1 {
				pad = arg(args, 1)
			}
			return padString(v, target, pad, true), nil
		})
	case "padEnd":
		return builtin(func(args []Value) (Value, error) {
			target := 0
			if len(args) > 0 {
				target = int(toNumber(args[0]))
			}
			pad := " "
			if len(args) > 1 {
				pad = arg(args, 1)
			}
			return padString(v, target, pad, false), nil
		})
	case "concat":
		return builtin(func(args []Value) (Value, error) {
			out := v
			for _, a := range args {
				out += stringifyValue(a)
			}
			return out, nil
		})
	case "toString":
		return builtin(func(args []Value) (Value, error) { return v, nil })
	}
	return nil
}

func padString(v string, target int, pad string, start bool) string {
	if pad == "" || len(v) >= target {
		return v
	}
	need := target - len(v)
	var b strings.Builder
	for b.Len() < need {
		b.WriteString(pad)
	}
	padding := b.String()[:need]
	if start {
		return padding + v
	}
	return v + padding
}
