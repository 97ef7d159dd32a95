package knight

import (
	"fmt"
	"reflect"
)

var (
	vmType     = reflect.TypeOf((*VM)(nil))
	valueType  = reflect.TypeOf(Value{})
	listType   = reflect.TypeOf([]Value(nil))
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	customType = reflect.TypeOf((*Custom)(nil)).Elem()
)

type argConverter func(fn string, v Value) (reflect.Value, error)

// NewNativeBuiltin wraps a plain Go function as an extension operator. The
// function may take a leading *VM; its other parameters are converted with
// the language's coercions (int64, int, float64, string, bool, []Value or
// Value) and its result, optionally followed by an error, is converted back.
func NewNativeBuiltin(name string, fn any, doc *Doc) (*Builtin, error) {
	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("knight: %s is not a function: %T", name, fn)
	}
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("knight: %s: variadic functions have no fixed arity", name)
	}

	wantsVM := false
	argOffset := 0
	if fnType.NumIn() > 0 && fnType.In(0) == vmType {
		wantsVM = true
		argOffset = 1
	}

	arity := fnType.NumIn() - argOffset
	if arity > maxArity {
		return nil, fmt.Errorf("knight: %s takes %d arguments, at most %d are allowed", name, arity, maxArity)
	}

	converters := make([]argConverter, arity)
	for i := range converters {
		conv, err := createTypeConverter(fnType.In(i + argOffset))
		if err != nil {
			return nil, fmt.Errorf("knight: %s argument %d: %w", name, i+1, err)
		}
		converters[i] = conv
	}

	// errIdx is the position of a trailing error result, or -1.
	errIdx := -1
	hasValue := false
	switch fnType.NumOut() {
	case 0:
	case 1:
		if fnType.Out(0) == errorType {
			errIdx = 0
		} else {
			hasValue = true
		}
	case 2:
		if fnType.Out(1) != errorType {
			return nil, fmt.Errorf("knight: %s: second result must be an error", name)
		}
		errIdx, hasValue = 1, true
	default:
		return nil, fmt.Errorf("knight: %s returns too many values", name)
	}
	if hasValue {
		if _, err := convertGoValue(reflect.Zero(fnType.Out(0))); err != nil {
			return nil, fmt.Errorf("knight: %s: %w", name, err)
		}
	}

	call := func(vm *VM, args []Value) (Value, error) {
		in := make([]reflect.Value, 0, len(args)+1)
		if wantsVM {
			in = append(in, reflect.ValueOf(vm))
		}
		for i, conv := range converters {
			converted, err := conv(name, args[i])
			if err != nil {
				return Null, err
			}
			in = append(in, converted)
		}

		results := fnValue.Call(in)

		if errIdx >= 0 && !results[errIdx].IsNil() {
			err := results[errIdx].Interface().(error)
			if _, ok := AsKnightError(err); ok {
				return Null, err
			}
			if _, ok := AsExit(err); ok {
				return Null, err
			}
			return Null, NewRuntimeError(KindDomain, fmt.Sprintf("%s: %v", name, err))
		}
		if !hasValue {
			return Null, nil
		}
		return convertGoValue(results[0])
	}

	return &Builtin{
		Name:      name,
		Key:       OperatorKey(name),
		Arity:     arity,
		Form:      FormDispatch,
		Extension: true,
		Fn:        call,
		Doc:       doc,
	}, nil
}

func createTypeConverter(t reflect.Type) (argConverter, error) {
	switch {
	case t == valueType:
		return func(fn string, v Value) (reflect.Value, error) {
			return reflect.ValueOf(v), nil
		}, nil
	case t == listType:
		return func(fn string, v Value) (reflect.Value, error) {
			l, err := v.ToList()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(l), nil
		}, nil
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int64, reflect.Int32:
		return func(fn string, v Value) (reflect.Value, error) {
			n, err := v.ToInteger()
			if err != nil {
				return reflect.Value{}, err
			}
			out := reflect.New(t).Elem()
			if out.OverflowInt(n) {
				return reflect.Value{}, overflowError(fn)
			}
			out.SetInt(n)
			return out, nil
		}, nil
	case reflect.Float64:
		return func(fn string, v Value) (reflect.Value, error) {
			if v.Type() != TypeFloat {
				return reflect.Value{}, typeError(fn, v)
			}
			return reflect.ValueOf(v.AsFloat()), nil
		}, nil
	case reflect.String:
		return func(fn string, v Value) (reflect.Value, error) {
			s, err := v.ToString()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(s).Convert(t), nil
		}, nil
	case reflect.Bool:
		return func(fn string, v Value) (reflect.Value, error) {
			b, err := v.ToBoolean()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(b).Convert(t), nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported parameter type %s", t)
}

func convertGoValue(rv reflect.Value) (Value, error) {
	if rv.Type() == valueType {
		return rv.Interface().(Value), nil
	}
	if rv.Type() == listType {
		return List(rv.Interface().([]Value)), nil
	}
	if rv.Type().Implements(customType) {
		if (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) && rv.IsNil() {
			return Null, nil
		}
		return NewCustom(rv.Interface().(Custom)), nil
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int64, reflect.Int32:
		return Int(rv.Int()), nil
	case reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return Str(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	}
	return Null, fmt.Errorf("unsupported result type %s", rv.Type())
}
