// Package compiler turns graph documents into immutable flow definitions.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/viant/fluxflow/internal/yml"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/runtime/rule"
	"go.uber.org/multierr"
)

const edgeType = "EVENT"

// Compile parses a JSON graph document. Any problem aborts the whole compilation;
// a returned error is always a *CompileError and the definition is nil.
func Compile(data []byte) (*definition.Definition, error) {
	if !gjson.ValidBytes(data) {
		return nil, newCompileError(errors.New("malformed graph document"))
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, newCompileError(errors.New("graph document must be an object"))
	}
	c := &compilation{}
	def := c.definition(doc)
	c.validate(def)
	if c.err != nil {
		return nil, newCompileError(c.err)
	}
	def.Source = append([]byte(nil), data...)
	return def, nil
}

// CompileYAML parses a YAML graph document with the same layout as the JSON one.
func CompileYAML(data []byte) (*definition.Definition, error) {
	jsonData, err := yml.ToJSON(data)
	if err != nil {
		return nil, newCompileError(fmt.Errorf("malformed yaml graph document: %w", err))
	}
	return Compile(jsonData)
}

type compilation struct {
	err error
}

func (c *compilation) fail(err error) {
	c.err = multierr.Append(c.err, err)
}

func (c *compilation) definition(doc gjson.Result) *definition.Definition {
	def := &definition.Definition{
		ID:                doc.Get("id").String(),
		MetaID:            doc.Get("metaId").String(),
		Version:           doc.Get("version").String(),
		Name:              doc.Get("name").String(),
		Status:            definition.Status(strings.ToUpper(doc.Get("status").String())),
		ExceptionFitables: stringList(doc.Get("exceptionFitables")),
		Types:             parseTypes(doc.Get("types")),
	}
	if def.Status == "" {
		def.Status = definition.StatusActive
	}
	if def.ID == "" {
		def.ID = def.StreamID()
	}
	for _, item := range doc.Get("nodes").Array() {
		if typeOf(item) == edgeType {
			def.Events = append(def.Events, c.edge(item))
			continue
		}
		if node := c.node(item); node != nil {
			def.Nodes = append(def.Nodes, node)
		}
	}
	for _, item := range doc.Get("events").Array() {
		def.Events = append(def.Events, c.edge(item))
	}
	return def
}

func parseTypes(doc gjson.Result) []*definition.TypeNode {
	var result []*definition.TypeNode
	for _, item := range doc.Array() {
		result = append(result, &definition.TypeNode{
			ID:       item.Get("id").String(),
			Name:     item.Get("name").String(),
			Children: parseTypes(item.Get("children")),
		})
	}
	return result
}

func (c *compilation) edge(doc gjson.Result) *definition.Event {
	event := &definition.Event{
		MetaID:        doc.Get("id").String(),
		Name:          doc.Get("name").String(),
		From:          doc.Get("fromShape").String(),
		To:            doc.Get("toShape").String(),
		ConditionRule: strings.TrimSpace(doc.Get("conditionRule").String()),
	}
	if event.From == "" {
		event.From = doc.Get("from").String()
	}
	if event.To == "" {
		event.To = doc.Get("to").String()
	}
	return event
}

func (c *compilation) node(doc gjson.Result) *definition.Node {
	node := &definition.Node{
		MetaID:            doc.Get("id").String(),
		Name:              doc.Get("name").String(),
		Type:              definition.NodeType(typeOf(doc)),
		TriggerMode:       definition.TriggerMode(strings.ToUpper(doc.Get("triggerMode").String())),
		Properties:        properties(doc.Get("properties")),
		ExceptionFitables: stringList(doc.Get("exceptionFitables")),
	}
	if node.TriggerMode == "" {
		node.TriggerMode = definition.TriggerAuto
	}
	if node.TriggerMode != definition.TriggerAuto && node.TriggerMode != definition.TriggerManual {
		c.fail(fmt.Errorf("node %q: unsupported trigger mode %q", node.MetaID, node.TriggerMode))
	}
	parse, ok := nodeParsers[node.Type]
	if !ok {
		c.fail(&UnsupportedTypeError{Role: RoleNode, Type: string(node.Type), NodeID: node.MetaID})
		return nil
	}
	if jober := doc.Get("jober"); jober.IsObject() {
		node.Jober = c.jober(node.MetaID, jober)
	}
	if task := doc.Get("task"); task.IsObject() {
		node.Task = c.task(node.MetaID, task)
	}
	if filter := doc.Get("joberFilter"); filter.IsObject() {
		node.JoberFilter = c.filter(node.MetaID, filter)
	}
	if filter := doc.Get("taskFilter"); filter.IsObject() {
		node.TaskFilter = c.filter(node.MetaID, filter)
	}
	if callback := doc.Get("callback"); callback.IsObject() {
		node.Callback = c.callback(node.MetaID, callback)
	}
	stamp(node)
	if err := parse(doc, node); err != nil {
		c.fail(err)
	}
	return node
}

// stamp copies node level cross-cutting fields onto the node work specs.
func stamp(node *definition.Node) {
	if jober := node.Jober; jober != nil {
		jober.NodeID = node.MetaID
		jober.TriggerMode = node.TriggerMode
		if jober.Name == "" {
			jober.Name = node.Name
		}
		if len(jober.Exceptions) == 0 {
			jober.Exceptions = node.ExceptionFitables
		}
	}
	if task := node.Task; task != nil {
		task.NodeID = node.MetaID
		task.TriggerMode = node.TriggerMode
		if task.Name == "" {
			task.Name = node.Name
		}
		if len(task.ExceptionFitables) == 0 {
			task.ExceptionFitables = node.ExceptionFitables
		}
	}
}

func (c *compilation) jober(nodeID string, doc gjson.Result) *definition.Jober {
	jober := &definition.Jober{
		Type:       definition.JoberType(typeOf(doc)),
		Name:       doc.Get("name").String(),
		Fitables:   stringList(doc.Get("fitables")),
		Exceptions: stringList(doc.Get("exceptionFitables")),
		Properties: properties(doc.Get("properties")),
	}
	parse, ok := joberParsers[jober.Type]
	if !ok {
		c.fail(&UnsupportedTypeError{Role: RoleJober, Type: string(jober.Type), NodeID: nodeID})
		return nil
	}
	if converter := doc.Get("converter"); converter.IsObject() {
		jober.Converter = c.converter(nodeID, converter)
	}
	if retry := doc.Get("retry"); retry.IsObject() {
		jober.Retry = &definition.Retry{
			MaxRetries: int(retry.Get("maxRetries").Int()),
			Delay:      retry.Get("delay").String(),
			MaxDelay:   retry.Get("maxDelay").String(),
			Multiplier: retry.Get("multiplier").Float(),
		}
	}
	if err := parse(entityOf(doc), jober); err != nil {
		c.fail(fmt.Errorf("node %q: %w", nodeID, err))
	}
	return jober
}

func (c *compilation) task(nodeID string, doc gjson.Result) *definition.Task {
	task := &definition.Task{
		Type:              definition.TaskType(typeOf(doc)),
		Source:            doc.Get("source").String(),
		Owner:             doc.Get("owner").String(),
		Name:              doc.Get("name").String(),
		ExceptionFitables: stringList(doc.Get("exceptionFitables")),
		Properties:        properties(doc.Get("properties")),
	}
	parse, ok := taskParsers[task.Type]
	if !ok {
		c.fail(&UnsupportedTypeError{Role: RoleTask, Type: string(task.Type), NodeID: nodeID})
		return nil
	}
	if converter := doc.Get("converter"); converter.IsObject() {
		task.Converter = c.converter(nodeID, converter)
	}
	if err := parse(entityOf(doc), task); err != nil {
		c.fail(fmt.Errorf("node %q: %w", nodeID, err))
	}
	return task
}

func (c *compilation) filter(nodeID string, doc gjson.Result) *definition.Filter {
	filter := &definition.Filter{Type: definition.FilterType(typeOf(doc))}
	parse, ok := filterParsers[filter.Type]
	if !ok {
		c.fail(&UnsupportedTypeError{Role: RoleFilter, Type: string(filter.Type), NodeID: nodeID})
		return nil
	}
	if err := parse(doc, filter); err != nil {
		c.fail(fmt.Errorf("node %q: %w", nodeID, err))
	}
	return filter
}

func (c *compilation) callback(nodeID string, doc gjson.Result) *definition.Callback {
	callback := &definition.Callback{
		Type:     definition.CallbackType(typeOf(doc)),
		Fitables: stringList(doc.Get("fitables")),
	}
	parse, ok := callbackParsers[callback.Type]
	if !ok {
		c.fail(&UnsupportedTypeError{Role: RoleCallback, Type: string(callback.Type), NodeID: nodeID})
		return nil
	}
	if err := parse(doc, callback); err != nil {
		c.fail(fmt.Errorf("node %q: %w", nodeID, err))
	}
	return callback
}

func (c *compilation) converter(nodeID string, doc gjson.Result) *definition.Converter {
	converter := &definition.Converter{Type: definition.ConverterType(typeOf(doc))}
	parse, ok := converterParsers[converter.Type]
	if !ok {
		c.fail(&UnsupportedTypeError{Role: RoleConverter, Type: string(converter.Type), NodeID: nodeID})
		return nil
	}
	if err := parse(doc, converter); err != nil {
		c.fail(fmt.Errorf("node %q: %w", nodeID, err))
	}
	return converter
}

func (c *compilation) validate(def *definition.Definition) {
	if def.MetaID == "" {
		c.fail(errors.New("metaId is required"))
	}
	if def.Version == "" {
		c.fail(errors.New("version is required"))
	}
	if def.Status != definition.StatusActive && def.Status != definition.StatusInactive {
		c.fail(fmt.Errorf("unsupported definition status %q", def.Status))
	}
	seen := map[string]bool{}
	starts := 0
	for _, node := range def.Nodes {
		if node.MetaID == "" {
			c.fail(errors.New("node id is required"))
			continue
		}
		if seen[node.MetaID] {
			c.fail(fmt.Errorf("duplicate node id %q", node.MetaID))
		}
		seen[node.MetaID] = true
		if node.Type == definition.NodeTypeStart {
			starts++
		}
		if node.Manual() && node.Task == nil {
			c.fail(fmt.Errorf("manual node %q requires a task", node.MetaID))
		}
		if node.Jober != nil && node.Task != nil && (node.JoberFilter == nil || node.TaskFilter == nil) {
			c.fail(fmt.Errorf("node %q defines jober and task without jober and task filters", node.MetaID))
		}
	}
	if starts != 1 {
		c.fail(fmt.Errorf("expected exactly one start node, found %d", starts))
	}
	for _, event := range def.Events {
		if !seen[event.From] {
			c.fail(fmt.Errorf("event %q: unknown fromShape %q", event.MetaID, event.From))
		}
		if !seen[event.To] {
			c.fail(fmt.Errorf("event %q: unknown toShape %q", event.MetaID, event.To))
		}
		if err := rule.Validate(event.ConditionRule); err != nil {
			c.fail(fmt.Errorf("event %q: %w", event.MetaID, err))
		}
	}
}
