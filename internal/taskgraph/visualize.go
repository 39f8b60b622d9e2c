package taskgraph

import (
	"encoding/json"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/normalization"
)

// VisualizationFormat represents the output format for graph visualization.
type VisualizationFormat string

const (
	FormatText    VisualizationFormat = "text"
	FormatMermaid VisualizationFormat = "mermaid"
	FormatDOT     VisualizationFormat = "dot"
	FormatJSON    VisualizationFormat = "json"
)

var formatNormalizer = normalization.NewNormalizer("format", map[string]VisualizationFormat{
	"text":     FormatText,
	"mermaid":  FormatMermaid,
	"dot":      FormatDOT,
	"graphviz": FormatDOT,
	"json":     FormatJSON,
}, FormatText)

// ParseFormat converts a raw string to a VisualizationFormat.
func ParseFormat(raw string) (VisualizationFormat, error) {
	return formatNormalizer.Parse(raw)
}

// Visualize renders the graph in the requested format. Tasks appear in
// dependency order.
func (g *Graph) Visualize(format VisualizationFormat) (string, error) {
	switch format {
	case FormatText:
		return g.visualizeText(), nil
	case FormatMermaid:
		return g.visualizeMermaid(), nil
	case FormatDOT:
		return g.visualizeDOT(), nil
	case FormatJSON:
		return g.visualizeJSON()
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func (g *Graph) visualizeText() string {
	var sb strings.Builder
	sb.WriteString("Task Graph\n")
	sb.WriteString("==========\n\n")

	order := g.TopoOrder()
	actions := 0
	for i, name := range order {
		t := g.tasks[name]
		isLast := i == len(order)-1
		prefix, connector := "├──", "│   "
		if isLast {
			prefix, connector = "└──", "    "
		}

		kind := "composite"
		if t.Action != nil {
			kind = "action"
			actions++
		}
		fmt.Fprintf(&sb, "%s [%s] (%s)", prefix, name, kind)
		if t.Description != "" {
			fmt.Fprintf(&sb, " %s", t.Description)
		}
		sb.WriteString("\n")
		if !t.Dependencies.IsZero() {
			fmt.Fprintf(&sb, "%s  ⤷ runs after: %s\n", connector, t.Dependencies)
		}
	}

	fmt.Fprintf(&sb, "\nTotal: %d tasks (%d actions, %d composites)\n", len(order), actions, len(order)-actions)
	return sb.String()
}

func mermaidID(name string) string {
	id := strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(id, "-", "")
}

func (g *Graph) visualizeMermaid() string {
	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("graph TD\n")

	order := g.TopoOrder()
	for _, name := range order {
		if g.tasks[name].Action == nil {
			fmt.Fprintf(&sb, "    %s([\"%s\"])\n", mermaidID(name), name)
		} else {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", mermaidID(name), name)
		}
	}
	sb.WriteString("\n")

	for _, name := range order {
		for _, e := range edges(g.tasks[name].Dependencies) {
			fmt.Fprintf(&sb, "    %s --> %s\n", mermaidID(e), mermaidID(name))
		}
		for _, pair := range seriesPairs(g.tasks[name].Dependencies) {
			fmt.Fprintf(&sb, "    %s -.-> %s\n", mermaidID(pair[0]), mermaidID(pair[1]))
		}
	}

	sb.WriteString("```\n")
	return sb.String()
}

func (g *Graph) visualizeDOT() string {
	var sb strings.Builder
	sb.WriteString("digraph TaskGraph {\n")
	sb.WriteString("    rankdir=TB;\n")
	sb.WriteString("    node [shape=box, style=rounded];\n\n")

	order := g.TopoOrder()
	for _, name := range order {
		if g.tasks[name].Action == nil {
			fmt.Fprintf(&sb, "    %q [shape=ellipse];\n", name)
		} else {
			fmt.Fprintf(&sb, "    %q;\n", name)
		}
	}
	sb.WriteString("\n")

	for _, name := range order {
		for _, e := range edges(g.tasks[name].Dependencies) {
			fmt.Fprintf(&sb, "    %q -> %q;\n", e, name)
		}
		for _, pair := range seriesPairs(g.tasks[name].Dependencies) {
			fmt.Fprintf(&sb, "    %q -> %q [style=dashed];\n", pair[0], pair[1])
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

type jsonTask struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Action       bool     `json:"action"`
	Dependencies string   `json:"dependencies,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"`
}

type jsonGraph struct {
	Tasks []jsonTask `json:"tasks"`
	Order []string   `json:"order"`
}

func (g *Graph) visualizeJSON() (string, error) {
	out := jsonGraph{Order: g.TopoOrder()}
	for _, name := range g.order {
		t := g.tasks[name]
		jt := jsonTask{
			Name:        name,
			Description: t.Description,
			Action:      t.Action != nil,
			DependsOn:   edges(t.Dependencies),
		}
		if !t.Dependencies.IsZero() {
			jt.Dependencies = t.Dependencies.String()
		}
		out.Tasks = append(out.Tasks, jt)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// edges returns the unique task names referenced by n.
func edges(n Node) []string {
	var out []string
	seen := map[string]bool{}
	for _, name := range n.TaskNames() {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// seriesPairs returns consecutive ref pairs of every series in n, i.e. the
// ordering constraints between siblings.
func seriesPairs(n Node) [][2]string {
	var out [][2]string
	var walk func(Node)
	walk = func(n Node) {
		if n.Kind == KindSeries {
			for i := 1; i < len(n.Children); i++ {
				prev, next := n.Children[i-1], n.Children[i]
				if prev.Kind == KindRef && next.Kind == KindRef {
					out = append(out, [2]string{prev.Name, next.Name})
				}
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}
