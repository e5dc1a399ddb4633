// Package tree содержит чистые операции над плоским списком задач с
// parent-указателями: сборка дерева, замыкание и проверка циклов. Один и
// тот же код обслуживает и офлайн-клиент, и прогрев локального кэша.
package tree

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"brianhub/internal/models/task"
)

var (
	ErrSelfParent     = errors.New("задача не может быть родителем самой себя")
	ErrCycleDetected  = errors.New("цикл в иерархии задач")
	ErrTaskNotFound   = errors.New("задача не найдена")
	ErrParentNotFound = errors.New("новый родитель не найден")
)

type Node struct {
	*task.Task
	Children []*Node
}

// Edge - одна строка замыкания (ancestor, descendant, depth).
type Edge struct {
	AncestorID   uuid.UUID
	DescendantID uuid.UUID
	Depth        int
}

// BuildAdjacency собирает дерево из плоского списка. Задача с parent_id,
// отсутствующим в списке, считается корнем. Уровни сортируются компаратором.
func BuildAdjacency(tasks []*task.Task, less func(a, b *task.Task) int) []*Node {
	nodes := make(map[uuid.UUID]*Node, len(tasks))
	for _, t := range tasks {
		nodes[t.ID] = &Node{Task: t}
	}

	var roots []*Node
	for _, t := range tasks {
		node := nodes[t.ID]
		if t.ParentID != nil {
			if parent, ok := nodes[*t.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	if less != nil {
		sortLevel(roots, less)
		for _, node := range nodes {
			sortLevel(node.Children, less)
		}
	}
	return roots
}

func sortLevel(nodes []*Node, less func(a, b *task.Task) int) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return less(nodes[i].Task, nodes[j].Task) < 0
	})
}

// ComputeClosure строит полный набор рёбер замыкания, включая self-рёбра
// глубины 0. Используется тестами и восстановлением индекса.
func ComputeClosure(tasks []*task.Task) []Edge {
	adjacency := adjacencyMap(tasks)

	var edges []Edge
	for _, t := range tasks {
		type frame struct {
			id    uuid.UUID
			depth int
		}
		stack := []frame{{id: t.ID}}
		seen := map[uuid.UUID]bool{}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[top.id] {
				continue
			}
			seen[top.id] = true
			edges = append(edges, Edge{AncestorID: t.ID, DescendantID: top.id, Depth: top.depth})
			for _, child := range adjacency[top.id] {
				stack = append(stack, frame{id: child, depth: top.depth + 1})
			}
		}
	}
	return edges
}

// AssertNoCycles - двухцветный DFS (visiting/visited) по parent-связям.
func AssertNoCycles(tasks []*task.Task) error {
	adjacency := adjacencyMap(tasks)

	visiting := map[uuid.UUID]bool{}
	visited := map[uuid.UUID]bool{}

	var dfs func(id uuid.UUID) bool
	dfs = func(id uuid.UUID) bool {
		if visiting[id] {
			return true
		}
		if visited[id] {
			return false
		}
		visiting[id] = true
		for _, child := range adjacency[id] {
			if dfs(child) {
				return true
			}
		}
		delete(visiting, id)
		visited[id] = true
		return false
	}

	for id := range adjacency {
		if dfs(id) {
			return ErrCycleDetected
		}
	}
	return nil
}

// Reparent - офлайн-вариант без таблицы замыкания: перевешивает parent_id
// на копии списка и прогоняет полный AssertNoCycles. Исходный список не
// трогается, если перенос создал бы цикл.
func Reparent(tasks []*task.Task, taskID uuid.UUID, newParentID *uuid.UUID) ([]*task.Task, error) {
	if newParentID != nil && taskID == *newParentID {
		return nil, ErrSelfParent
	}

	next := make([]*task.Task, len(tasks))
	var target *task.Task
	byID := make(map[uuid.UUID]bool, len(tasks))
	for i, t := range tasks {
		clone := t.Clone()
		next[i] = clone
		byID[clone.ID] = true
		if clone.ID == taskID {
			target = clone
		}
	}
	if target == nil {
		return nil, ErrTaskNotFound
	}
	if newParentID != nil && !byID[*newParentID] {
		return nil, ErrParentNotFound
	}

	target.ParentID = newParentID
	if err := AssertNoCycles(next); err != nil {
		return nil, err
	}
	return next, nil
}

func adjacencyMap(tasks []*task.Task) map[uuid.UUID][]uuid.UUID {
	adjacency := make(map[uuid.UUID][]uuid.UUID, len(tasks))
	for _, t := range tasks {
		if _, ok := adjacency[t.ID]; !ok {
			adjacency[t.ID] = nil
		}
	}
	for _, t := range tasks {
		if t.ParentID != nil {
			if _, ok := adjacency[*t.ParentID]; ok {
				adjacency[*t.ParentID] = append(adjacency[*t.ParentID], t.ID)
			}
		}
	}
	return adjacency
}
