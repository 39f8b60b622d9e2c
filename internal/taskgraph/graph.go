package taskgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"git.home.luguber.info/inful/assetpipe/internal/buildmode"
	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Action is the work a task performs once its dependencies completed.
type Action func(ctx context.Context, mode buildmode.Mode) error

// Task is a named unit of the graph. A task without an Action is a pure
// composition of its Dependencies.
type Task struct {
	Name         string
	Description  string
	Action       Action
	Dependencies Node
}

// Graph is an immutable, validated set of tasks.
type Graph struct {
	tasks map[string]Task
	order []string // declaration order
}

// New validates tasks and builds a graph.
func New(tasks ...Task) (*Graph, error) {
	g := &Graph{tasks: make(map[string]Task, len(tasks))}
	for _, t := range tasks {
		if strings.TrimSpace(t.Name) == "" {
			return nil, derrors.GraphError("task name must not be empty").Build()
		}
		if _, exists := g.tasks[t.Name]; exists {
			return nil, derrors.GraphError("duplicate task name").
				WithContext("task", t.Name).
				Build()
		}
		if t.Action == nil && t.Dependencies.IsZero() {
			return nil, derrors.GraphError("task has neither an action nor dependencies").
				WithContext("task", t.Name).
				Build()
		}
		g.tasks[t.Name] = t
		g.order = append(g.order, t.Name)
	}

	for _, name := range g.order {
		for _, dep := range g.tasks[name].Dependencies.TaskNames() {
			if _, ok := g.tasks[dep]; !ok {
				return nil, derrors.GraphError(fmt.Sprintf("task %q depends on unknown task %q", name, dep)).
					WithContext("task", name).
					WithContext("dependency", dep).
					Build()
			}
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, derrors.GraphError("circular dependency detected: "+strings.Join(cycle, " -> ")).
			WithContext("cycle", cycle).
			Build()
	}
	return g, nil
}

// Task returns the task with the given name.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Names returns task names in declaration order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Validate checks that every reference in root names a known task.
func (g *Graph) Validate(root Node) error {
	for _, name := range root.TaskNames() {
		if _, ok := g.tasks[name]; !ok {
			return derrors.NotFoundError(fmt.Sprintf("unknown task %q", name)).
				WithContext("task", name).
				Build()
		}
	}
	return nil
}

// findCycle returns the first dependency cycle as a closed path
// (a -> b -> a), or nil.
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(g.tasks))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = inProgress
		stack = append(stack, name)
		for _, dep := range g.tasks[name].Dependencies.TaskNames() {
			switch state[dep] {
			case inProgress:
				for i, s := range stack {
					if s == dep {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, dep)
					}
				}
			case unvisited:
				if c := visit(dep); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range g.order {
		if state[name] == unvisited {
			if c := visit(name); c != nil {
				return c
			}
		}
	}
	return nil
}

// TopoOrder returns task names so that every task follows the tasks it
// depends on (Kahn's algorithm, ties broken alphabetically).
func (g *Graph) TopoOrder() []string {
	dependents := make(map[string][]string, len(g.tasks))
	inDegree := make(map[string]int, len(g.tasks))
	for _, name := range g.order {
		seen := map[string]bool{}
		for _, dep := range g.tasks[name].Dependencies.TaskNames() {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for _, name := range g.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(g.tasks))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		next := dependents[current]
		sort.Strings(next)
		for _, n := range next {
			inDegree[n]--
			if inDegree[n] == 0 {
				queue = append(queue, n)
				sort.Strings(queue)
			}
		}
	}
	return result
}
