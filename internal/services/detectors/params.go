package detectors

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"

	"SignalFuse/internal/domain/models"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Params is the flat option map of one detector. Boolean options use 0 and 1.
type Params map[string]float64

var validate = validator.New()

// decodeParams fills out (a pointer to a params struct) from defaults tags, overlays the
// entries of in by their `param` tag and validates the result.
func decodeParams(detector string, in Params, out any) error {
	if err := defaults.Set(out); err != nil {
		return fmt.Errorf("%s: set defaults: %w", detector, err)
	}
	rv := reflect.ValueOf(out).Elem()
	rt := rv.Type()
	known := make(map[string]int, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		if tag := rt.Field(i).Tag.Get("param"); tag != "" {
			known[tag] = i
		}
	}

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := in[key]
		idx, ok := known[key]
		if !ok {
			return &models.InvalidParameterError{Detector: detector, Param: key, Value: v, Reason: "unknown parameter"}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &models.InvalidParameterError{Detector: detector, Param: key, Value: v, Reason: "must be finite"}
		}
		f := rv.Field(idx)
		switch f.Kind() {
		case reflect.Int:
			if v != math.Trunc(v) {
				return &models.InvalidParameterError{Detector: detector, Param: key, Value: v, Reason: "must be an integer"}
			}
			f.SetInt(int64(v))
		case reflect.Float64:
			f.SetFloat(v)
		case reflect.Bool:
			if v != 0 && v != 1 {
				return &models.InvalidParameterError{Detector: detector, Param: key, Value: v, Reason: "must be 0 or 1"}
			}
			f.SetBool(v == 1)
		}
	}

	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			param := fe.Field()
			if sf, ok := rt.FieldByName(fe.StructField()); ok {
				param = sf.Tag.Get("param")
			}
			reason := fe.Tag()
			if fe.Param() != "" {
				reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
			}
			return &models.InvalidParameterError{Detector: detector, Param: param, Value: fe.Value(), Reason: "failed " + reason}
		}
		return fmt.Errorf("%s: validate params: %w", detector, err)
	}
	return nil
}

// encodeParams flattens a params struct back into a Params map.
func encodeParams(in any) Params {
	rv := reflect.ValueOf(in).Elem()
	rt := rv.Type()
	out := make(Params, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("param")
		if tag == "" {
			continue
		}
		f := rv.Field(i)
		switch f.Kind() {
		case reflect.Int:
			out[tag] = float64(f.Int())
		case reflect.Float64:
			out[tag] = f.Float()
		case reflect.Bool:
			if f.Bool() {
				out[tag] = 1
			} else {
				out[tag] = 0
			}
		}
	}
	return out
}
