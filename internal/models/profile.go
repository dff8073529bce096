// Package models contains data structures used throughout the application
package models

import (
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
)

// Parameter names as they appear in Nightscout profile documents
const (
	ParamDIA                = "dia"
	ParamSensitivity        = "sens"
	ParamCarbRatio          = "carbratio"
	ParamCarbAbsorptionRate = "carbs_hr"
	ParamTargetLow          = "target_low"
	ParamTargetHigh         = "target_high"
	ParamBasal              = "basal"
	ParamUnits              = "units"
	ParamTimezone           = "timezone"
)

// DefaultProfileName is the store key given to migrated single-profile documents
const DefaultProfileName = "Default"

// RawDocument is a profile document as decoded from the document store
type RawDocument map[string]any

// ProfileDocument is a normalized multi-profile record
type ProfileDocument struct {
	ID                 string                       `json:"_id,omitempty"`
	DefaultProfileName string                       `json:"defaultProfile"`
	StartDate          string                       `json:"startDate,omitempty"`
	Store              map[string]ProfileDefinition `json:"store"`
}

// Names returns the store's profile names in ascending order
func (d *ProfileDocument) Names() []string {
	names := make([]string, 0, len(d.Store))
	for name := range d.Store {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileDefinition is one named profile: scalar settings plus schedules
type ProfileDefinition struct {
	Fields map[string]Node
}

// IsEmpty reports whether the definition holds no fields
func (p ProfileDefinition) IsEmpty() bool {
	return len(p.Fields) == 0
}

// Parameter returns the node stored under name
func (p ProfileDefinition) Parameter(name string) (Node, bool) {
	n, ok := p.Fields[name]
	return n, ok
}

// Text returns a scalar field verbatim, or "" when absent or not a scalar
func (p ProfileDefinition) Text(name string) string {
	n, ok := p.Fields[name]
	if !ok || n.Kind != NodeScalar {
		return ""
	}
	return n.Text
}

// Units returns the profile's glucose units
func (p ProfileDefinition) Units() string { return p.Text(ParamUnits) }

// Timezone returns the profile's declared IANA timezone
func (p ProfileDefinition) Timezone() string { return p.Text(ParamTimezone) }

func (p ProfileDefinition) MarshalJSON() ([]byte, error) {
	if p.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Fields)
}

// NodeKind tags the variant held by a Node
type NodeKind uint8

const (
	NodeNull NodeKind = iota
	NodeScalar
	NodeEntry
	NodeList
	NodeMap
)

func (k NodeKind) String() string {
	switch k {
	case NodeScalar:
		return "scalar"
	case NodeEntry:
		return "entry"
	case NodeList:
		return "list"
	case NodeMap:
		return "map"
	default:
		return "null"
	}
}

// Node is the typed profile tree. Exactly one payload matches Kind.
type Node struct {
	Kind NodeKind

	// NodeScalar. Literal scalars (numbers, booleans) encode unquoted.
	Text    string
	Literal bool

	Entry *ScheduleEntry
	List  []Node
	Map   map[string]Node
}

// ScheduleEntry is one step of a time-of-day schedule
type ScheduleEntry struct {
	Time string
	Raw  Node

	// Filled by preprocessing
	Seconds      int
	SecondsValid bool
	Value        Value
}

// Scalar builds a quoted scalar node
func Scalar(text string) Node {
	return Node{Kind: NodeScalar, Text: text}
}

// Number builds a literal numeric scalar node
func Number(n float64) Node {
	return Node{Kind: NodeScalar, Text: strconv.FormatFloat(n, 'f', -1, 64), Literal: true}
}

// Entry builds a schedule entry node with a "HH:MM" time and a value
func Entry(timeOfDay string, value Node) Node {
	return Node{Kind: NodeEntry, Entry: &ScheduleEntry{Time: timeOfDay, Raw: value}}
}

// List builds a list node
func List(items ...Node) Node {
	return Node{Kind: NodeList, List: items}
}

// IsSchedule reports whether the node is a list holding schedule entries
func (n Node) IsSchedule() bool {
	if n.Kind != NodeList {
		return false
	}
	for _, item := range n.List {
		if item.Kind == NodeEntry {
			return true
		}
	}
	return false
}

// NodeFromAny converts a decoded JSON value into the typed tree. This is the
// only place where dynamic values are inspected.
func NodeFromAny(v any) Node {
	switch t := v.(type) {
	case nil:
		return Node{Kind: NodeNull}
	case map[string]any:
		if entry, ok := entryFromMap(t); ok {
			return Node{Kind: NodeEntry, Entry: entry}
		}
		m := make(map[string]Node, len(t))
		for k, child := range t {
			m[k] = NodeFromAny(child)
		}
		return Node{Kind: NodeMap, Map: m}
	case RawDocument:
		return NodeFromAny(map[string]any(t))
	case []any:
		items := make([]Node, len(t))
		for i, child := range t {
			items[i] = NodeFromAny(child)
		}
		return Node{Kind: NodeList, List: items}
	case string:
		return Scalar(t)
	case bool:
		return Node{Kind: NodeScalar, Text: strconv.FormatBool(t), Literal: true}
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		return Node{Kind: NodeScalar, Text: t.String(), Literal: true}
	default:
		return Scalar("")
	}
}

func entryFromMap(m map[string]any) (*ScheduleEntry, bool) {
	rawValue, hasValue := m["value"]
	if !hasValue {
		return nil, false
	}
	rawTime, hasTime := m["time"]
	rawSeconds, hasSeconds := m["timeAsSeconds"]
	if !hasTime && !hasSeconds {
		return nil, false
	}

	entry := &ScheduleEntry{Raw: NodeFromAny(rawValue)}
	if hasTime {
		entry.Time = NodeFromAny(rawTime).Text
	}
	if hasSeconds {
		if n, err := ParseNumber(NodeFromAny(rawSeconds).Text); err == nil {
			entry.Seconds = int(n)
			entry.SecondsValid = true
		}
	}
	return entry, true
}

type entryJSON struct {
	Time          string `json:"time,omitempty"`
	Value         Node   `json:"value"`
	TimeAsSeconds *int   `json:"timeAsSeconds,omitempty"`
}

// MarshalJSON produces the canonical encoding: map keys sorted, entries with
// their derived seconds.
func (n Node) MarshalJSON() ([]byte, error) {
	switch n.Kind {
	case NodeScalar:
		if n.Literal {
			return []byte(n.Text), nil
		}
		return json.Marshal(n.Text)
	case NodeEntry:
		out := entryJSON{Time: n.Entry.Time, Value: n.Entry.Raw}
		if n.Entry.SecondsValid {
			secs := n.Entry.Seconds
			out.TimeAsSeconds = &secs
		}
		return json.Marshal(out)
	case NodeList:
		if n.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(n.List)
	case NodeMap:
		if n.Map == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(n.Map)
	default:
		return []byte("null"), nil
	}
}
