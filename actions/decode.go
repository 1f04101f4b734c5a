package actions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/AltairaLabs/EdenKit/money"
)

var amountType = reflect.TypeOf(money.Amount(0))

// DecodeParams decodes resolved params into out. Values are first normalised
// through JSON so structs held in the context decode the same way as maps
// read from a definition file.
func DecodeParams(params map[string]any, out any) error {
	plain, err := normalise(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			amountHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(plain); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func normalise(params map[string]any) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// amountHook reads money.Amount fields from decimal numbers or strings.
var amountHook mapstructure.DecodeHookFuncType = func(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != amountType || data == nil {
		return data, nil
	}
	if s, ok := data.(string); ok && s == "" {
		return money.Zero, nil
	}
	return money.FromAny(data)
}

// plain converts v into JSON-shaped data for storage in the execution context.
func plain(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
