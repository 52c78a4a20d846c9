package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/viant/fluxflow/model/definition"
)

type (
	nodeParser      func(doc gjson.Result, node *definition.Node) error
	joberParser     func(entity gjson.Result, jober *definition.Jober) error
	taskParser      func(entity gjson.Result, task *definition.Task) error
	filterParser    func(doc gjson.Result, filter *definition.Filter) error
	callbackParser  func(doc gjson.Result, callback *definition.Callback) error
	converterParser func(doc gjson.Result, converter *definition.Converter) error
)

// The registries are closed: adding a kind means adding one entry here and one parser function.
var (
	nodeParsers = map[definition.NodeType]nodeParser{
		definition.NodeTypeStart:     parseStartNode,
		definition.NodeTypeState:     parsePlainNode,
		definition.NodeTypeCondition: parsePlainNode,
		definition.NodeTypeParallel:  parsePlainNode,
		definition.NodeTypeJoin:      parseJoinNode,
		definition.NodeTypeEnd:       parseEndNode,
	}

	joberParsers = map[definition.JoberType]joberParser{
		definition.JoberEcho:        parseEchoJober,
		definition.JoberHTTP:        parseHTTPJober,
		definition.JoberGenericable: parseGenericJober,
		definition.JoberStore:       parseStoreJober,
		definition.JoberScript:      parseScriptJober,
	}

	taskParsers = map[definition.TaskType]taskParser{
		definition.TaskManual:   parseManualTask,
		definition.TaskApproval: parseManualTask,
	}

	filterParsers = map[definition.FilterType]filterParser{
		definition.FilterMinimumSize: parseThresholdFilter(1),
		definition.FilterSameBatch:   parseThresholdFilter(0),
		definition.FilterChunkSize:   parseThresholdFilter(1),
	}

	callbackParsers = map[definition.CallbackType]callbackParser{
		definition.CallbackGeneral: parseGeneralCallback,
		definition.CallbackFitable: parseFitableCallback,
	}

	converterParsers = map[definition.ConverterType]converterParser{
		definition.ConverterMapping: parseMappingConverter,
	}
)

func typeOf(doc gjson.Result) string {
	return strings.ToUpper(strings.TrimSpace(doc.Get("type").String()))
}

func stringList(doc gjson.Result) []string {
	if !doc.Exists() {
		return nil
	}
	var result []string
	if !doc.IsArray() {
		if s := doc.String(); s != "" {
			result = append(result, s)
		}
		return result
	}
	for _, item := range doc.Array() {
		if s := item.String(); s != "" {
			result = append(result, s)
		}
	}
	return result
}

func properties(doc gjson.Result) map[string]interface{} {
	if !doc.IsObject() {
		return nil
	}
	if value, ok := doc.Value().(map[string]interface{}); ok && len(value) > 0 {
		return value
	}
	return nil
}

func entityOf(doc gjson.Result) gjson.Result {
	if entity := doc.Get("entity"); entity.IsObject() {
		return entity
	}
	return doc
}

func parseStartNode(_ gjson.Result, node *definition.Node) error {
	if node.Task != nil || node.Manual() {
		return fmt.Errorf("start node %q cannot be manual", node.MetaID)
	}
	return nil
}

func parsePlainNode(_ gjson.Result, _ *definition.Node) error { return nil }

func parseJoinNode(_ gjson.Result, node *definition.Node) error {
	switch mode := definition.JoinMode(strings.ToUpper(string(node.JoinMode()))); mode {
	case definition.JoinAll, definition.JoinEither:
		if node.Properties == nil {
			node.Properties = map[string]interface{}{}
		}
		node.Properties["mode"] = string(mode)
		return nil
	default:
		return fmt.Errorf("join node %q: unsupported mode %q", node.MetaID, mode)
	}
}

func parseEndNode(_ gjson.Result, node *definition.Node) error {
	if node.Jober != nil || node.Task != nil {
		return fmt.Errorf("end node %q cannot carry work", node.MetaID)
	}
	return nil
}

func parseEchoJober(_ gjson.Result, _ *definition.Jober) error { return nil }

func parseHTTPJober(entity gjson.Result, jober *definition.Jober) error {
	spec := &definition.HTTPSpec{
		Method:  strings.ToUpper(entity.Get("method").String()),
		URL:     entity.Get("url").String(),
		Timeout: entity.Get("timeout").String(),
	}
	if spec.Method == "" {
		spec.Method = "POST"
	}
	if spec.URL == "" && len(jober.Fitables) == 0 {
		return fmt.Errorf("http jober requires url or fitables")
	}
	if spec.Timeout != "" {
		if _, err := time.ParseDuration(spec.Timeout); err != nil {
			return fmt.Errorf("http jober: invalid timeout %q: %w", spec.Timeout, err)
		}
	}
	if headers := entity.Get("headers"); headers.IsObject() {
		spec.Headers = map[string]string{}
		headers.ForEach(func(key, value gjson.Result) bool {
			spec.Headers[key.String()] = value.String()
			return true
		})
	}
	jober.HTTP = spec
	return nil
}

func parseGenericJober(entity gjson.Result, jober *definition.Jober) error {
	spec := &definition.GenericSpec{
		GenericableID: entity.Get("genericableId").String(),
		Params:        paramNames(entity.Get("params")),
	}
	if spec.GenericableID == "" {
		return fmt.Errorf("genericable jober requires genericableId")
	}
	if len(jober.Fitables) == 0 {
		return fmt.Errorf("genericable jober %q requires fitables", spec.GenericableID)
	}
	jober.Generic = spec
	return nil
}

func parseStoreJober(entity gjson.Result, jober *definition.Jober) error {
	spec := &definition.StoreSpec{
		UniqueName: entity.Get("uniqueName").String(),
		Params:     paramNames(entity.Get("params")),
	}
	if spec.UniqueName == "" {
		return fmt.Errorf("store jober requires uniqueName")
	}
	jober.Store = spec
	return nil
}

func parseScriptJober(entity gjson.Result, jober *definition.Jober) error {
	spec := &definition.ScriptSpec{
		Language: strings.ToLower(entity.Get("language").String()),
		Source:   entity.Get("source").String(),
	}
	if spec.Source == "" {
		spec.Source = entity.Get("script").String()
	}
	if spec.Language == "" {
		spec.Language = "js"
	}
	if spec.Language != "js" && spec.Language != "lua" {
		return fmt.Errorf("script jober: unsupported language %q", spec.Language)
	}
	if strings.TrimSpace(spec.Source) == "" {
		return fmt.Errorf("script jober requires source")
	}
	jober.Script = spec
	return nil
}

// paramNames accepts ["a","b"] or [{"name":"a"},{"name":"b"}], keeping order.
func paramNames(doc gjson.Result) []string {
	var result []string
	for _, item := range doc.Array() {
		name := item.String()
		if item.IsObject() {
			name = item.Get("name").String()
		}
		if name != "" {
			result = append(result, name)
		}
	}
	return result
}

func parseManualTask(entity gjson.Result, task *definition.Task) error {
	if task.Source == "" {
		task.Source = entity.Get("source").String()
	}
	if task.Owner == "" {
		task.Owner = entity.Get("owner").String()
	}
	return nil
}

func parseThresholdFilter(defaultThreshold int) filterParser {
	return func(doc gjson.Result, filter *definition.Filter) error {
		threshold := doc.Get("threshold")
		if !threshold.Exists() {
			threshold = doc.Get("properties.threshold")
		}
		filter.Threshold = defaultThreshold
		if threshold.Exists() {
			filter.Threshold = int(threshold.Int())
		}
		if filter.Threshold < 0 {
			return fmt.Errorf("%s: threshold must be >= 0", filter.Type)
		}
		if filter.Type == definition.FilterChunkSize && filter.Threshold == 0 {
			return fmt.Errorf("%s: threshold must be > 0", filter.Type)
		}
		return nil
	}
}

func parseGeneralCallback(_ gjson.Result, _ *definition.Callback) error { return nil }

func parseFitableCallback(_ gjson.Result, callback *definition.Callback) error {
	if len(callback.Fitables) == 0 {
		return fmt.Errorf("fitable callback requires fitables")
	}
	return nil
}

func parseMappingConverter(doc gjson.Result, converter *definition.Converter) error {
	mappings := doc.Get("mappings")
	if !mappings.Exists() {
		mappings = doc.Get("entity.mappings")
	}
	var err error
	converter.Mappings, err = parseMappings(mappings)
	return err
}

func parseMappings(doc gjson.Result) ([]*definition.Mapping, error) {
	var result []*definition.Mapping
	for _, item := range doc.Array() {
		mapping := &definition.Mapping{
			Name: item.Get("name").String(),
			From: definition.MappingSource(strings.ToUpper(item.Get("from").String())),
		}
		if mapping.Name == "" {
			return nil, fmt.Errorf("mapping converter: mapping name is required")
		}
		if mapping.From == "" {
			mapping.From = definition.FromInput
		}
		switch mapping.From {
		case definition.FromInput:
			mapping.Value = item.Get("value").Value()
		case definition.FromReference:
			ref := item.Get("value").String()
			if ref == "" {
				return nil, fmt.Errorf("mapping converter: %s: reference is empty", mapping.Name)
			}
			if !strings.HasPrefix(ref, "$") {
				ref = "$." + ref
			}
			mapping.Value = ref
		case definition.FromExpand:
			children, err := parseMappings(item.Get("value"))
			if err != nil {
				return nil, err
			}
			mapping.Children = children
		default:
			return nil, fmt.Errorf("mapping converter: %s: unsupported source %q", mapping.Name, mapping.From)
		}
		result = append(result, mapping)
	}
	return result, nil
}
