package actions

import (
	"context"
	"fmt"
	"maps"

	"github.com/AltairaLabs/EdenKit/logger"
)

// Built-in action tags.
const (
	TypeSet = "set"
	TypeLog = "log"
)

// handleSet copies its resolved params into the context.
func handleSet(_ context.Context, call Call, _ map[string]any) (map[string]any, error) {
	return maps.Clone(call.Params), nil
}

type logParams struct {
	Message string         `mapstructure:"message"`
	Level   string         `mapstructure:"level"`
	Fields  map[string]any `mapstructure:"fields"`
}

// handleLog writes a log line. It sets nothing.
func handleLog(ctx context.Context, call Call, _ map[string]any) (map[string]any, error) {
	var p logParams
	if err := DecodeParams(call.Params, &p); err != nil {
		return nil, err
	}
	if p.Message == "" {
		return nil, fmt.Errorf("%w: log requires a message", ErrInvalidParams)
	}
	args := make([]any, 0, 2*len(p.Fields)+2)
	args = append(args, "step", call.Step)
	for k, v := range p.Fields {
		args = append(args, k, v)
	}
	logger.DefaultLogger.Log(ctx, logger.ParseLevel(p.Level), p.Message, args...)
	return nil, nil
}
