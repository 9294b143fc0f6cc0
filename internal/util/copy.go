package util

import "reflect"

// cycleContext maps the address of an original pointer-like object (map,
// slice, ptr) to its copy so cyclic metadata cannot loop a copy forever.
type cycleContext map[uintptr]interface{}

// DeepCopy creates a deep copy of a value. The run ledger and the config
// store hand data to callers only through this helper, so no phase or heal
// step can mutate another's recorded metadata through a shared reference.
func DeepCopy(src interface{}) interface{} {
	if src == nil {
		return nil
	}
	ctx := make(cycleContext)
	return deepCopyRecursive(src, ctx)
}

// CopyStringMap returns a shallow copy of a string map. Sufficient for the
// flat override-argument and resolved-parameter maps passed between phases.
func CopyStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func deepCopyRecursive(src interface{}, ctx cycleContext) interface{} {
	if src == nil {
		return nil
	}

	original := reflect.ValueOf(src)
	kind := original.Kind()
	if kind == reflect.Map || kind == reflect.Slice || kind == reflect.Ptr {
		if cpy, exists := ctx[original.Pointer()]; exists {
			return cpy
		}
	}

	// Fast path for the shapes ledger metadata actually takes.
	switch v := src.(type) {
	case map[string]interface{}:
		cpy := make(map[string]interface{}, len(v))
		ctx[reflect.ValueOf(v).Pointer()] = cpy
		for key, value := range v {
			cpy[key] = deepCopyRecursive(value, ctx)
		}
		return cpy

	case map[string]string:
		cpy := CopyStringMap(v)
		ctx[reflect.ValueOf(v).Pointer()] = cpy
		return cpy

	case []interface{}:
		cpy := make([]interface{}, len(v))
		ctx[reflect.ValueOf(v).Pointer()] = cpy
		for i, value := range v {
			cpy[i] = deepCopyRecursive(value, ctx)
		}
		return cpy

	case []string:
		cpy := make([]string, len(v))
		ctx[reflect.ValueOf(v).Pointer()] = cpy
		copy(cpy, v)
		return cpy

	case string, int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8, float64, float32, bool:
		return v

	default:
		return deepCopyReflection(original, ctx)
	}
}

// deepCopyReflection is the fallback for structs and uncommon types.
func deepCopyReflection(original reflect.Value, ctx cycleContext) interface{} {
	if !original.IsValid() {
		return nil
	}

	switch original.Kind() {
	case reflect.Ptr:
		if original.IsNil() {
			return nil
		}
		addr := original.Pointer()
		if existing, exists := ctx[addr]; exists {
			return existing
		}
		newPtr := reflect.New(original.Type().Elem())
		ctx[addr] = newPtr.Interface()
		if elem := deepCopyRecursive(original.Elem().Interface(), ctx); elem != nil {
			newPtr.Elem().Set(reflect.ValueOf(elem))
		}
		return newPtr.Interface()

	case reflect.Interface:
		if original.IsNil() {
			return nil
		}
		return deepCopyRecursive(original.Elem().Interface(), ctx)

	case reflect.Slice:
		if original.IsNil() {
			return nil
		}
		cpy := reflect.MakeSlice(original.Type(), original.Len(), original.Cap())
		ctx[original.Pointer()] = cpy.Interface()
		for i := 0; i < original.Len(); i++ {
			elem := deepCopyRecursive(original.Index(i).Interface(), ctx)
			if elem != nil {
				cpy.Index(i).Set(reflect.ValueOf(elem))
			}
		}
		return cpy.Interface()

	case reflect.Map:
		if original.IsNil() {
			return nil
		}
		cpy := reflect.MakeMap(original.Type())
		ctx[original.Pointer()] = cpy.Interface()
		for _, key := range original.MapKeys() {
			value := deepCopyRecursive(original.MapIndex(key).Interface(), ctx)
			cpy.SetMapIndex(key, reflect.ValueOf(value))
		}
		return cpy.Interface()

	case reflect.Struct:
		cpy := reflect.New(original.Type()).Elem()
		for i := 0; i < original.NumField(); i++ {
			if cpy.Field(i).CanSet() {
				field := deepCopyRecursive(original.Field(i).Interface(), ctx)
				if field != nil {
					cpy.Field(i).Set(reflect.ValueOf(field))
				}
			}
		}
		return cpy.Interface()

	default:
		return original.Interface()
	}
}
