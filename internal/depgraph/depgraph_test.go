package depgraph

import (
	"testing"

	"pgsync/internal/catalog"
)

func indexOf(order []string, name string) int {
	for i, t := range order {
		if t == name {
			return i
		}
	}
	return -1
}

func TestBuildOrdersReferencedFirst(t *testing.T) {
	tables := []string{"orders", "users", "order_items", "products"}
	edges := []Edge{
		{From: "orders", To: "users"},
		{From: "order_items", To: "orders"},
		{From: "order_items", To: "products"},
	}

	plan := Build(tables, edges)
	if len(plan.Cycles) != 0 {
		t.Fatalf("unexpected cycles: %v", plan.Cycles)
	}
	if len(plan.Order) != len(tables) {
		t.Fatalf("order = %v, want all %d tables", plan.Order, len(tables))
	}

	for _, e := range edges {
		if indexOf(plan.Order, e.To) > indexOf(plan.Order, e.From) {
			t.Errorf("%s must load before %s: %v", e.To, e.From, plan.Order)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	tables := []string{"c", "a", "b"}
	first := Build(tables, nil)
	for i := 0; i < 10; i++ {
		again := Build(tables, nil)
		for j := range first.Order {
			if first.Order[j] != again.Order[j] {
				t.Fatalf("order not deterministic: %v vs %v", first.Order, again.Order)
			}
		}
	}
	want := []string{"a", "b", "c"}
	for i, name := range want {
		if first.Order[i] != name {
			t.Errorf("order[%d] = %s, want %s (lexicographic tie break)", i, first.Order[i], name)
		}
	}
}

func TestBuildThreeCycle(t *testing.T) {
	tables := []string{"a", "b", "c", "d"}
	edges := []Edge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
		{From: "c", To: "a"},
		{From: "d", To: "a"},
	}

	plan := Build(tables, edges)

	if len(plan.Order) != 4 {
		t.Fatalf("cycle members must still appear in order: %v", plan.Order)
	}
	if len(plan.Cycles) != 1 {
		t.Fatalf("cycles = %v, want exactly one", plan.Cycles)
	}
	cycle := plan.Cycles[0]
	if len(cycle) != 3 || cycle[0] != "a" {
		t.Errorf("cycle = %v, want [a b c] rotated to smallest first", cycle)
	}
}

func TestBuildSelfReferenceIgnored(t *testing.T) {
	plan := Build([]string{"employees"}, []Edge{{From: "employees", To: "employees"}})
	if len(plan.Cycles) != 0 {
		t.Errorf("self reference must not count as a cycle: %v", plan.Cycles)
	}
	if len(plan.Order) != 1 || plan.Order[0] != "employees" {
		t.Errorf("order = %v, want [employees]", plan.Order)
	}
}

func TestBuildTwoCyclesDeduplicated(t *testing.T) {
	tables := []string{"a", "b", "x", "y"}
	edges := []Edge{
		{From: "a", To: "b"},
		{From: "b", To: "a"},
		{From: "x", To: "y"},
		{From: "y", To: "x"},
	}
	plan := Build(tables, edges)
	if len(plan.Cycles) != 2 {
		t.Fatalf("cycles = %v, want two distinct two-cycles", plan.Cycles)
	}
}

func TestEdgesFromTables(t *testing.T) {
	tables := []*catalog.Table{
		{Name: "orders", ForeignKeys: []catalog.ForeignKey{
			{Constraint: "orders_user_fk", Column: "user_id", RefTable: "users", RefColumn: "id"},
			{Constraint: "orders_user_fk2", Column: "payer_id", RefTable: "users", RefColumn: "id"},
			{Constraint: "orders_ext_fk", Column: "ext_id", RefTable: "external", RefColumn: "id"},
		}},
		{Name: "users", ForeignKeys: []catalog.ForeignKey{
			{Constraint: "users_self_fk", Column: "manager_id", RefTable: "users", RefColumn: "id"},
		}},
	}

	edges := EdgesFromTables(tables)
	if len(edges) != 1 {
		t.Fatalf("edges = %v, want single deduplicated in-set edge", edges)
	}
	if edges[0] != (Edge{From: "orders", To: "users"}) {
		t.Errorf("edge = %v, want orders -> users", edges[0])
	}
}

func TestWaves(t *testing.T) {
	tables := []string{"users", "orders", "products", "order_items"}
	edges := []Edge{
		{From: "orders", To: "users"},
		{From: "order_items", To: "orders"},
		{From: "order_items", To: "products"},
	}
	plan := Build(tables, edges)
	waves := Waves(plan, edges)

	if len(waves) != 3 {
		t.Fatalf("waves = %v, want 3 stages", waves)
	}
	if len(waves[0]) != 2 {
		t.Errorf("wave 0 = %v, want users and products together", waves[0])
	}
	if len(waves[2]) != 1 || waves[2][0] != "order_items" {
		t.Errorf("wave 2 = %v, want [order_items]", waves[2])
	}
}
