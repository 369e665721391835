package server

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Query protocol parameters are flattened: lists and maps are spelled as
// numbered members ("AttributeName.1", "Attribute.1.Name", "Attribute.1.Value").
// The tables below describe how such members fold back into the JSON shape
// the request models decode.

// queryLists maps a member prefix to the list field it fills.
var queryLists = map[string]string{
	"AttributeName":              "AttributeNames",
	"MessageAttributeName":       "MessageAttributeNames",
	"MessageSystemAttributeName": "MessageSystemAttributeNames",
	"TagKey":                     "TagKeys",
}

type queryMap struct {
	field string
	key   string
	value string
}

// queryMaps maps a member prefix to the map field it fills.
var queryMaps = map[string]queryMap{
	"Attribute":              {field: "Attributes", key: "Name", value: "Value"},
	"Tag":                    {field: "Tags", key: "Key", value: "Value"},
	"MessageAttribute":       {field: "MessageAttributes", key: "Name", value: "Value"},
	"MessageSystemAttribute": {field: "MessageSystemAttributes", key: "Name", value: "Value"},
}

var queryEntries = map[string]bool{
	"SendMessageBatchRequestEntry":             true,
	"DeleteMessageBatchRequestEntry":           true,
	"ChangeMessageVisibilityBatchRequestEntry": true,
}

var queryIntegers = map[string]bool{
	"DelaySeconds":        true,
	"MaxNumberOfMessages": true,
	"WaitTimeSeconds":     true,
	"VisibilityTimeout":   true,
	"MaxResults":          true,
	"DurationSeconds":     true,
}

// queryTree splits dotted parameter names into nested maps.
func queryTree(form url.Values) map[string]any {
	root := map[string]any{}
	for key, values := range form {
		if key == "Action" || key == "Version" || len(values) == 0 {
			continue
		}
		parts := strings.Split(key, ".")
		node := root
		for i, part := range parts {
			if i == len(parts)-1 {
				if _, nested := node[part].(map[string]any); !nested {
					node[part] = values[0]
				}
				break
			}
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
	}
	return root
}

// shapeQuery folds a tree produced by queryTree into JSON request shape.
func shapeQuery(node map[string]any) map[string]any {
	out := make(map[string]any, len(node))
	for key, value := range node {
		switch {
		case queryLists[key] != "":
			if _, scalar := value.(string); scalar {
				out[key] = value
				continue
			}
			out[queryLists[key]] = indexed(value)
		case queryMaps[key].field != "":
			mp := queryMaps[key]
			m := map[string]any{}
			for _, item := range indexed(value) {
				entry, ok := item.(map[string]any)
				if !ok {
					continue
				}
				name, _ := entry[mp.key].(string)
				v := entry[mp.value]
				if nested, ok := v.(map[string]any); ok {
					v = shapeQuery(nested)
				}
				m[name] = v
			}
			out[mp.field] = m
		case queryEntries[key]:
			var entries []any
			for _, item := range indexed(value) {
				if entry, ok := item.(map[string]any); ok {
					entries = append(entries, shapeQuery(entry))
				}
			}
			out["Entries"] = entries
		case queryIntegers[key]:
			s, _ := value.(string)
			if n, err := strconv.Atoi(s); err == nil {
				out[key] = n
			} else {
				out[key] = value
			}
		default:
			if nested, ok := value.(map[string]any); ok {
				value = shapeQuery(nested)
			}
			out[key] = value
		}
	}
	return out
}

// indexed returns the members of a numbered node in index order.
func indexed(value any) []any {
	node, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	type member struct {
		index int
		value any
	}
	members := make([]member, 0, len(node))
	for k, v := range node {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		members = append(members, member{n, v})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].index < members[j].index })
	list := make([]any, len(members))
	for i, m := range members {
		list[i] = m.value
	}
	return list
}
