package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dop251/goja"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// ErrEventRejected is returned when a JavaScript transform function rejects an
// event by returning null or undefined
var ErrEventRejected = errors.New("event rejected by transformer")

// Transformer applies an optional user-supplied JavaScript function to
// enriched envelopes before they are published.
type Transformer struct {
	logger   *logrus.Logger
	script   string     // Cached script content
	natsConn *nats.Conn // NATS connection for JavaScript bindings
}

// NewTransformer loads and validates the JavaScript script at scriptPath. An
// empty path yields a pass-through transformer.
func NewTransformer(scriptPath string, logger *logrus.Logger, natsConn *nats.Conn) (*Transformer, error) {
	t := &Transformer{
		logger:   logger,
		natsConn: natsConn,
	}
	if scriptPath == "" {
		return t, nil
	}

	content, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JavaScript script file: %w", err)
	}

	if err := t.validateScript(string(content)); err != nil {
		return nil, fmt.Errorf("invalid JavaScript script: %w", err)
	}

	t.script = string(content)
	logger.Infof("Loaded JavaScript transformation script: %s", scriptPath)
	return t, nil
}

// validateScript validates that the script exports a transform function
func (t *Transformer) validateScript(scriptContent string) error {
	vm := goja.New()

	// The script can be:
	// 1. An anonymous function: (function(event) { return event; })
	// 2. A named function: function transform(event) { return event; }
	// 3. A function assigned to a variable: var transform = function(event) { return event; }
	result, err := vm.RunString(scriptContent)
	if err != nil {
		return fmt.Errorf("failed to execute script: %w", err)
	}

	if _, ok := resolveCallable(vm, result); !ok {
		return fmt.Errorf("script must export a function (either anonymous function or named 'transform' function)")
	}
	return nil
}

// resolveCallable extracts the transform function from a script evaluation:
// either the script's own result, or a named 'transform' function.
func resolveCallable(vm *goja.Runtime, result goja.Value) (goja.Callable, bool) {
	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		if callable, ok := goja.AssertFunction(result); ok {
			return callable, true
		}
	}

	transformVar := vm.Get("transform")
	if transformVar != nil && !goja.IsUndefined(transformVar) && !goja.IsNull(transformVar) {
		if callable, ok := goja.AssertFunction(transformVar); ok {
			return callable, true
		}
	}

	return nil, false
}

// Transform runs the configured script against an enriched envelope. It
// returns data unchanged when no script is configured, and ErrEventRejected
// when the script returns null or undefined.
func (t *Transformer) Transform(data []byte) ([]byte, error) {
	if t.script == "" {
		return data, nil
	}

	// goja.Runtime is not thread-safe, so each call gets a fresh VM.
	vm := goja.New()

	if err := t.setupConsoleBindings(vm); err != nil {
		return nil, fmt.Errorf("failed to setup console bindings: %w", err)
	}

	// Expose NATS functionality to JavaScript if a connection is available
	if t.natsConn != nil {
		if err := t.setupNATSBindings(vm); err != nil {
			return nil, fmt.Errorf("failed to setup NATS bindings: %w", err)
		}
	}

	scriptResult, err := vm.RunString(t.script)
	if err != nil {
		return nil, fmt.Errorf("failed to execute JavaScript script: %w", err)
	}

	callable, ok := resolveCallable(vm, scriptResult)
	if !ok {
		return nil, fmt.Errorf("script must export a function (either anonymous function or named 'transform' function)")
	}

	// Parse the envelope JSON inside the VM so the script sees a plain object
	if err := vm.Set("eventJSON", string(data)); err != nil {
		return nil, fmt.Errorf("failed to set event JSON: %w", err)
	}
	eventObj, err := vm.RunString("JSON.parse(eventJSON)")
	if err != nil {
		return nil, fmt.Errorf("failed to parse event JSON: %w", err)
	}

	result, err := callable(goja.Undefined(), eventObj)
	if err != nil {
		t.logger.Errorf("JavaScript transform function error: %v", err)
		return nil, fmt.Errorf("JavaScript transform function error: %w", err)
	}

	// null or undefined means the script rejected the event
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, ErrEventRejected
	}

	exported := result.Export()
	out, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		t.logger.Errorf("Failed to marshal JavaScript result: %v", err)
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	t.logger.Debugf("JavaScript transformation result: %s", string(out))
	return out, nil
}

// setupConsoleBindings sets up console JavaScript bindings in the VM
func (t *Transformer) setupConsoleBindings(vm *goja.Runtime) error {
	consoleObj := vm.NewObject()

	formatArgs := func(call goja.FunctionCall) string {
		args := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		return fmt.Sprint(args...)
	}

	bindings := map[string]func(goja.FunctionCall) goja.Value{
		"log": func(call goja.FunctionCall) goja.Value {
			t.logger.Info(formatArgs(call))
			return goja.Undefined()
		},
		"error": func(call goja.FunctionCall) goja.Value {
			t.logger.Error(formatArgs(call))
			return goja.Undefined()
		},
		"warn": func(call goja.FunctionCall) goja.Value {
			t.logger.Warn(formatArgs(call))
			return goja.Undefined()
		},
		"info": func(call goja.FunctionCall) goja.Value {
			t.logger.Info(formatArgs(call))
			return goja.Undefined()
		},
		"debug": func(call goja.FunctionCall) goja.Value {
			t.logger.Debug(formatArgs(call))
			return goja.Undefined()
		},
	}

	for name, fn := range bindings {
		if err := consoleObj.Set(name, fn); err != nil {
			return fmt.Errorf("failed to set console.%s: %w", name, err)
		}
	}

	if err := vm.Set("console", consoleObj); err != nil {
		return fmt.Errorf("failed to set console object: %w", err)
	}

	return nil
}

// setupNATSBindings sets up NATS JavaScript bindings in the VM
func (t *Transformer) setupNATSBindings(vm *goja.Runtime) error {
	natsObj := vm.NewObject()

	publishFn := func(call goja.FunctionCall) goja.Value {
		subject := call.Argument(0).String()
		if subject == "" {
			panic(vm.NewTypeError("nats.publish: subject is required"))
		}

		dataArg := call.Argument(1)
		if goja.IsUndefined(dataArg) || goja.IsNull(dataArg) {
			panic(vm.NewTypeError("nats.publish: data is required"))
		}

		var dataBytes []byte
		exported := dataArg.Export()
		switch v := exported.(type) {
		case string:
			dataBytes = []byte(v)
		case []byte:
			dataBytes = v
		default:
			marshaled, err := json.Marshal(exported)
			if err != nil {
				panic(vm.NewTypeError("nats.publish: failed to marshal data: %v", err))
			}
			dataBytes = marshaled
		}

		if err := t.natsConn.Publish(subject, dataBytes); err != nil {
			t.logger.Errorf("NATS publish error: %v", err)
			panic(vm.NewGoError(err))
		}

		t.logger.Debugf("Published to NATS subject: %s", subject)
		return goja.Undefined()
	}

	if err := natsObj.Set("publish", publishFn); err != nil {
		return fmt.Errorf("failed to set publish function: %w", err)
	}

	if err := vm.Set("nats", natsObj); err != nil {
		return fmt.Errorf("failed to set nats object: %w", err)
	}

	return nil
}
