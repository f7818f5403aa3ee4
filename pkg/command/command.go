// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package command builds the JSON commands understood by TP-Link smart home devices and inspects
// their responses.
//
// A command maps a module name to a map of action names to their arguments. A response mirrors
// this nesting; each action's result carries an "err_code", 0 indicating success.
//
//	{"time":{"get_time":{}}}
//	{"time":{"get_time":{"err_code":0,"year":2024,"month":1,"mday":2,"hour":3,"min":4,"sec":5}}}
package command

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/kasa-go/pkg/transport"
)

// Command maps module names to actions and their arguments.
type Command map[string]map[string]interface{}

// New creates a Command for a single module's action. Nil arguments are sent as an empty object.
func New(module, action string, args interface{}) Command {
	if args == nil {
		args = struct{}{}
	}

	return Command{module: {action: args}}
}

// Add another module's action to this Command.
func (c Command) Add(module, action string, args interface{}) Command {
	if args == nil {
		args = struct{}{}
	}

	if _, ok := c[module]; !ok {
		c[module] = make(map[string]interface{})
	}
	c[module][action] = args
	return c
}

// Parse a Command from its JSON representation, e.g., user input.
func Parse(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.CheckValid(); err != nil {
		return nil, err
	}
	return c, nil
}

// CheckValid reports structural errors, e.g., modules without actions.
func (c Command) CheckValid() (errs error) {
	if len(c) == 0 {
		return fmt.Errorf("command contains no module")
	}

	for module, actions := range c {
		if module == "" {
			errs = multierror.Append(errs, fmt.Errorf("empty module name"))
		}
		if len(actions) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("module %q contains no action", module))
		}
		for action := range actions {
			if action == "" {
				errs = multierror.Append(errs, fmt.Errorf("module %q contains an empty action name", module))
			}
		}
	}

	return
}

// Marshal this Command into its JSON representation.
func (c Command) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Actions returns each (module, action) pair of this Command.
func (c Command) Actions() (pairs [][2]string) {
	for module, actions := range c {
		for action := range actions {
			pairs = append(pairs, [2]string{module, action})
		}
	}
	return
}

// ResponseError is returned for a module's action with a missing or non-zero "err_code".
type ResponseError struct {
	Module  string
	Action  string
	ErrCode int
	ErrMsg  string

	// Response is the action's raw result.
	Response json.RawMessage
}

func (re *ResponseError) Error() string {
	if re.ErrMsg != "" {
		return fmt.Sprintf("%s.%s: err_code %d: %s", re.Module, re.Action, re.ErrCode, re.ErrMsg)
	}
	return fmt.Sprintf("%s.%s: err_code %d", re.Module, re.Action, re.ErrCode)
}

// status is embedded in each action's result.
type status struct {
	ErrCode *int   `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// Result of a module's action from a response. A missing result or an "err_code" other than 0
// results in a *ResponseError.
func Result(resp transport.Response, module, action string) (json.RawMessage, error) {
	rawModule, ok := resp[module]
	if !ok {
		return nil, &ResponseError{Module: module, Action: action, ErrCode: ErrModuleNotSupported, ErrMsg: "module missing in response"}
	}

	var moduleResult map[string]json.RawMessage
	if err := json.Unmarshal(rawModule, &moduleResult); err != nil {
		return nil, fmt.Errorf("%s: %v", module, err)
	}

	// A device may answer on module level, e.g., for an unknown module.
	if _, ok := moduleResult[action]; !ok {
		var moduleStatus status
		if err := json.Unmarshal(rawModule, &moduleStatus); err == nil && moduleStatus.ErrCode != nil && *moduleStatus.ErrCode != 0 {
			return nil, &ResponseError{
				Module:   module,
				Action:   action,
				ErrCode:  *moduleStatus.ErrCode,
				ErrMsg:   moduleStatus.ErrMsg,
				Response: rawModule,
			}
		}

		return nil, &ResponseError{Module: module, Action: action, ErrCode: ErrMethodNotSupported, ErrMsg: "action missing in response"}
	}

	result := moduleResult[action]

	var st status
	if err := json.Unmarshal(result, &st); err != nil {
		return nil, fmt.Errorf("%s.%s: %v", module, action, err)
	}
	if st.ErrCode == nil {
		return nil, &ResponseError{Module: module, Action: action, ErrCode: ErrUnknown, ErrMsg: "err_code missing", Response: result}
	}
	if *st.ErrCode != 0 {
		return nil, &ResponseError{Module: module, Action: action, ErrCode: *st.ErrCode, ErrMsg: st.ErrMsg, Response: result}
	}

	return result, nil
}

// CheckResponse verifies every action of the Command in the response. All failures are combined.
func (c Command) CheckResponse(resp transport.Response) (errs error) {
	for _, pair := range c.Actions() {
		if _, err := Result(resp, pair[0], pair[1]); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return
}
