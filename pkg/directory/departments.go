package directory

import (
	"context"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/hrtools/healthcert/pkg/database"
)

// DepartmentNode is a department with its children, for tree rendering.
type DepartmentNode struct {
	Department
	Children []*DepartmentNode `json:"children,omitempty"`
}

// declaredParents collects name -> parent name pairs from the roster. The
// first non-empty parent seen for a name wins. Parents that never appear as a
// department themselves are added as roots.
func declaredParents(entries []RosterEntry) (map[string]string, []string) {
	parents := make(map[string]string)
	var order []string
	for _, entry := range entries {
		name := strings.TrimSpace(entry.DepartName)
		if name == "" {
			continue
		}
		parent := strings.TrimSpace(entry.SupDep)
		if parent == name {
			parent = ""
		}
		current, ok := parents[name]
		if !ok {
			parents[name] = parent
			order = append(order, name)
			continue
		}
		if current == "" && parent != "" {
			parents[name] = parent
		}
	}
	for _, name := range order {
		p := parents[name]
		if p == "" {
			continue
		}
		if _, ok := parents[p]; !ok {
			parents[p] = ""
			order = append(order, p)
		}
	}
	return parents, order
}

// rebuildDepartments finds or creates every department named in the roster
// and recomputes parent linkage, level and path. Parents are resolved before
// their children; a cycle is broken by treating the re-entered department as
// a root. It returns the number of departments written.
func (e *Engine) rebuildDepartments(ctx context.Context, entries []RosterEntry) (int, error) {
	parents, order := declaredParents(entries)
	if len(order) == 0 {
		return 0, nil
	}

	existing, err := e.departments.List(ctx, DepartmentFilter{})
	if err != nil {
		return 0, err
	}
	byName := make(map[string]*Department, len(existing))
	for i := range existing {
		byName[existing[i].Name] = &existing[i]
	}

	resolved := make(map[string]*Department, len(order))
	visiting := mapset.NewThreadUnsafeSet[string]()

	var resolve func(name string) (*Department, error)
	resolve = func(name string) (*Department, error) {
		if d, ok := resolved[name]; ok {
			return d, nil
		}
		visiting.Add(name)
		defer visiting.Remove(name)

		parentName := parents[name]
		var parent *Department
		if parentName != "" && !visiting.Contains(parentName) {
			p, err := resolve(parentName)
			if err != nil {
				return nil, err
			}
			parent = p
		} else if parentName != "" {
			e.logger.Warn("department parent cycle, treating as root",
				zap.String("department", name), zap.String("parent", parentName))
		}

		d := byName[name]
		if d == nil {
			d = &Department{Name: name}
		}
		d.ParentName = parentName
		d.IsActive = true
		if parent != nil {
			id := parent.ID
			d.ParentID = &id
			d.Level = parent.Level + 1
			d.Path = parent.Path + name + "/"
		} else {
			d.ParentID = nil
			d.Level = 1
			d.Path = "/" + name + "/"
		}
		if err := e.saveDepartment(ctx, d); err != nil {
			return nil, err
		}
		resolved[name] = d
		return d, nil
	}

	for _, name := range order {
		if _, err := resolve(name); err != nil {
			return 0, err
		}
	}
	return len(resolved), nil
}

func (e *Engine) saveDepartment(ctx context.Context, d *Department) error {
	if d.ID != 0 {
		return e.departments.Save(ctx, d)
	}
	err := e.departments.Create(ctx, d)
	if err == nil || !database.IsDuplicateKey(err) {
		return err
	}
	existing, gerr := e.departments.GetByName(ctx, d.Name)
	if gerr != nil {
		return gerr
	}
	if existing == nil {
		return err
	}
	d.ID = existing.ID
	d.SortOrder = existing.SortOrder
	d.EmployeeCount = existing.EmployeeCount
	d.CreatedAt = existing.CreatedAt
	return e.departments.Save(ctx, d)
}

// RefreshMemberCounts sets each department's member count to the number of
// active employees whose department name matches it.
func (e *Engine) RefreshMemberCounts(ctx context.Context) error {
	counts, err := e.employees.CountActiveByDepartment(ctx)
	if err != nil {
		return err
	}
	depts, err := e.departments.List(ctx, DepartmentFilter{})
	if err != nil {
		return err
	}
	for _, d := range depts {
		n := int(counts[d.Name])
		if n == d.EmployeeCount {
			continue
		}
		if err := e.departments.SetEmployeeCount(ctx, d.ID, n); err != nil {
			return err
		}
	}
	return nil
}

// ListDepartments returns departments matching filter.
func (e *Engine) ListDepartments(ctx context.Context, filter DepartmentFilter) ([]Department, error) {
	return e.departments.List(ctx, filter)
}

// SetDepartmentActive toggles a department's active flag.
func (e *Engine) SetDepartmentActive(ctx context.Context, id uint, active bool) error {
	return e.departments.SetActive(ctx, id, active)
}

// DepartmentTree returns the department hierarchy as nested nodes.
func (e *Engine) DepartmentTree(ctx context.Context, activeOnly bool) ([]*DepartmentNode, error) {
	depts, err := e.departments.List(ctx, DepartmentFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, err
	}
	return BuildTree(depts), nil
}

// BuildTree nests departments under their parents. Input order is kept among
// siblings; departments whose parent is missing from depts become roots.
func BuildTree(depts []Department) []*DepartmentNode {
	nodes := make(map[uint]*DepartmentNode, len(depts))
	for _, d := range depts {
		nodes[d.ID] = &DepartmentNode{Department: d}
	}
	var roots []*DepartmentNode
	for _, d := range depts {
		n := nodes[d.ID]
		if d.ParentID != nil {
			if p, ok := nodes[*d.ParentID]; ok && p != n {
				p.Children = append(p.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}
