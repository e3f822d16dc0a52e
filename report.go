package astieit

import (
	"fmt"
	"time"
)

// ReportNode is a node of the generic attribute tree handed to external renderers (JSON, XML, text)
// Building a report never parses nor validates anything and never mutates its source.
type ReportNode struct {
	Attributes []*ReportAttribute `json:"attributes,omitempty"`
	Children   []*ReportNode      `json:"children,omitempty"`
	Name       string             `json:"name"`
}

// ReportAttribute is a named attribute carrying both a structured value and its human readable form
type ReportAttribute struct {
	Name  string      `json:"name"`
	Text  string      `json:"text"`
	Value interface{} `json:"value"`
}

// NewReportNode creates a new report node
func NewReportNode(name string) *ReportNode {
	return &ReportNode{Name: name}
}

// AddChild appends a child when it's not nil
func (n *ReportNode) AddChild(c *ReportNode) *ReportNode {
	if c != nil {
		n.Children = append(n.Children, c)
	}
	return n
}

// AddHex adds an unsigned attribute whose text is its hexadecimal form
func (n *ReportNode) AddHex(name string, v uint64) *ReportNode {
	n.Attributes = append(n.Attributes, &ReportAttribute{Name: name, Text: fmt.Sprintf("0x%x", v), Value: v})
	return n
}

// AddBool adds a boolean attribute, rendered as 0x0/0x1
func (n *ReportNode) AddBool(name string, v bool) *ReportNode {
	t := "0x0"
	if v {
		t = "0x1"
	}
	n.Attributes = append(n.Attributes, &ReportAttribute{Name: name, Text: t, Value: v})
	return n
}

// AddString adds a string attribute
func (n *ReportNode) AddString(name, v string) *ReportNode {
	n.Attributes = append(n.Attributes, &ReportAttribute{Name: name, Text: v, Value: v})
	return n
}

// AddBytes adds a raw bytes attribute rendered as hexadecimal
func (n *ReportNode) AddBytes(name string, v []byte) *ReportNode {
	n.Attributes = append(n.Attributes, &ReportAttribute{Name: name, Text: fmt.Sprintf("%x", v), Value: v})
	return n
}

// AddTime adds a UTC time attribute, rendered as "2006/01/02 15:04:05"
func (n *ReportNode) AddTime(name string, v time.Time, undefined bool) *ReportNode {
	a := &ReportAttribute{Name: name, Text: "undefined"}
	if !undefined {
		a.Text = v.UTC().Format("2006/01/02 15:04:05")
		a.Value = v
	}
	n.Attributes = append(n.Attributes, a)
	return n
}

// AddDuration adds a duration attribute, rendered as "15:04:05"
func (n *ReportNode) AddDuration(name string, v time.Duration, undefined bool) *ReportNode {
	a := &ReportAttribute{Name: name, Text: "undefined"}
	if !undefined {
		a.Text = fmt.Sprintf("%02d:%02d:%02d", int(v.Hours()), int(v.Minutes())%60, int(v.Seconds())%60)
		a.Value = v
	}
	n.Attributes = append(n.Attributes, a)
	return n
}

// Attribute returns the first attribute with this name
func (n *ReportNode) Attribute(name string) (*ReportAttribute, bool) {
	for _, a := range n.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// RenderEITSection renders a section, its events and their descriptors
func RenderEITSection(s *EITSection) *ReportNode {
	n := NewReportNode("EIT").
		AddHex("table_id", uint64(s.TableID)).
		AddString("table_type", s.TableID.String()).
		AddHex("service_id", uint64(s.ServiceID)).
		AddHex("version_number", uint64(s.VersionNumber)).
		AddBool("current_next_indicator", s.CurrentNextIndicator).
		AddHex("section_number", uint64(s.SectionNumber)).
		AddHex("last_section_number", uint64(s.LastSectionNumber)).
		AddHex("transport_stream_id", uint64(s.TransportStreamID)).
		AddHex("segment_last_section_number", uint64(s.SegmentLastSectionNumber)).
		AddHex("last_table_id", uint64(s.LastTableID)).
		AddHex("original_network_id", uint64(s.OriginalNetworkID))

	for _, e := range s.Events {
		n.AddChild(renderEITEvent(e))
	}

	n.AddHex("CRC32", uint64(s.CRC32))
	return n
}

func renderEITEvent(e *EITEvent) *ReportNode {
	n := NewReportNode("Event").
		AddHex("event_id", uint64(e.EventID)).
		AddTime("start_time", e.StartTime, e.StartTimeUndefined).
		AddDuration("duration", e.Duration, e.DurationUndefined).
		AddHex("running_status", uint64(e.RunningStatus)).
		AddString("running_status_name", RunningStatusString(e.RunningStatus)).
		AddBool("free_CA_mode", e.HasFreeCSAMode).
		AddHex("descriptors_loop_length", uint64(e.DescriptorsLoopLength))

	if len(e.Descriptors) > 0 {
		ds := NewReportNode("Descriptors")
		for _, d := range e.Descriptors {
			ds.AddChild(d.Report())
		}
		n.AddChild(ds)
	}
	return n
}

// RenderEITRegistry renders every stored section, sorted by table id, transport stream id, service
// id and section number
func RenderEITRegistry(r *EITRegistry) *ReportNode {
	n := NewReportNode("EITs")
	for _, s := range r.Sections() {
		n.AddChild(RenderEITSection(s))
	}
	return n
}
