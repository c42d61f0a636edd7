// Package transform runs per-service JavaScript hooks over replayed
// requests before they are sent.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
	"github.com/tuncerburak97/tekrar/internal/config"
	"github.com/tuncerburak97/tekrar/internal/model"
)

// ScriptName is the file loaded from <scripts_dir>/<service_name>/.
const ScriptName = "replay.js"

type service struct {
	name    string
	program *goja.Program
}

// Engine handles replay transformations. Scripts are compiled once; each
// call runs in a fresh runtime.
type Engine struct {
	services map[string]service
	logger   zerolog.Logger
}

// scriptRequest is the shape scripts see as the global `request`.
type scriptRequest struct {
	Method  string         `json:"method"`
	URL     string         `json:"url"`
	Headers []model.Header `json:"headers"`
	Body    *string        `json:"body"`
}

// NewEngine compiles the replay script of every configured service.
func NewEngine(cfg config.TransformConfig, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		services: make(map[string]service),
		logger:   logger.With().Str("component", "transform").Logger(),
	}

	for label, svc := range cfg.Services {
		if svc.Host == "" || svc.ServiceName == "" {
			return nil, fmt.Errorf("transform service %s: host and service_name are required", label)
		}
		path := filepath.Join(cfg.ScriptsDir, svc.ServiceName, ScriptName)
		program, err := compileScript(path)
		if err != nil {
			return nil, fmt.Errorf("failed to compile replay script for service %s: %w", svc.ServiceName, err)
		}
		e.services[strings.ToLower(svc.Host)] = service{name: svc.ServiceName, program: program}
	}
	return e, nil
}

func compileScript(path string) (*goja.Program, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return goja.Compile(path, string(content), true)
}

// Services returns how many hosts have a script.
func (e *Engine) Services() int {
	return len(e.services)
}

// TransformReplay runs the script registered for the request host, if any,
// and copies the script's edits back into req.
func (e *Engine) TransformReplay(ctx context.Context, req *model.OutboundRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil {
		return err
	}
	svc, ok := e.services[strings.ToLower(u.Hostname())]
	if !ok {
		return nil
	}

	input, err := json.Marshal(scriptRequest{
		Method:  req.Method,
		URL:     req.URL,
		Headers: req.Headers,
		Body:    req.Body,
	})
	if err != nil {
		return err
	}

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	logger := e.logger.With().Str("service", svc.name).Logger()
	if err := vm.Set("log", func(msg string) { logger.Debug().Msg(msg) }); err != nil {
		return err
	}
	if err := vm.Set("__input", string(input)); err != nil {
		return err
	}
	if _, err := vm.RunString("var request = JSON.parse(__input);"); err != nil {
		return err
	}
	if _, err := vm.RunProgram(svc.program); err != nil {
		return fmt.Errorf("replay script %s: %w", svc.name, err)
	}

	output, err := vm.RunString("JSON.stringify(request)")
	if err != nil {
		return err
	}
	var result scriptRequest
	if err := json.Unmarshal([]byte(output.String()), &result); err != nil {
		return fmt.Errorf("replay script %s returned an invalid request: %w", svc.name, err)
	}

	if result.Method != "" {
		req.Method = result.Method
	}
	if result.URL != "" {
		req.URL = result.URL
	}
	req.Headers = result.Headers
	req.Body = result.Body
	return nil
}
