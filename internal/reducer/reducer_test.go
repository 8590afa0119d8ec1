package reducer

import (
	"fmt"
	"math"
	"testing"
	"time"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/graph"
)

func buildGraph(t *testing.T, accounts []domain.Account, transfers []domain.Transfer) *domain.Graph {
	t.Helper()
	g, err := graph.Build(accounts, transfers, graph.DefaultOptions())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return g
}

func uniformAccounts(n int, balance float64) []domain.Account {
	accounts := make([]domain.Account, n)
	for i := range accounts {
		accounts[i] = domain.Account{ID: fmt.Sprintf("0.0.%d", 1000+i), Balance: balance}
	}
	return accounts
}

func assertConserved(t *testing.T, before, after *domain.Graph) {
	t.Helper()
	b, a := before.TotalValue(), after.TotalValue()
	if math.Abs(b-a) > 1e-6*math.Max(1, b) {
		t.Errorf("Value not conserved: before %v, after %v", b, a)
	}
}

func assertNoDangling(t *testing.T, g *domain.Graph) {
	t.Helper()
	ids := g.NodeIndex()
	for i, l := range g.Links {
		if _, ok := ids[l.Source]; !ok {
			t.Errorf("Link %d: dangling source %s", i, l.Source)
		}
		if _, ok := ids[l.Target]; !ok {
			t.Errorf("Link %d: dangling target %s", i, l.Target)
		}
	}
}

func TestReduce_WithinBudgetReturnsSameGraph(t *testing.T) {
	g := buildGraph(t, uniformAccounts(10, 1), nil)

	out, err := Reduce(g, Options{MaxNodes: 10})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if out != g {
		t.Error("Expected identity when within budget")
	}

	out, err = Reduce(g, Options{MaxNodes: 0})
	if err != nil || out != g {
		t.Errorf("Expected identity when budget disabled, got %v", err)
	}
}

func TestReduce_UniformHolders(t *testing.T) {
	g := buildGraph(t, uniformAccounts(2000, 1), nil)

	out, err := Reduce(g, DefaultOptions())
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(out.Nodes) > 1000 {
		t.Errorf("Expected at most 1000 nodes, got %d", len(out.Nodes))
	}
	if math.Abs(out.TotalValue()-2000) > 1e-6 {
		t.Errorf("Expected total value 2000, got %v", out.TotalValue())
	}
	for _, n := range out.Nodes {
		if n.IsAggregate && n.Color != domain.ColorAggregate {
			t.Errorf("Aggregate %s has color %s", n.ID, n.Color)
		}
	}
}

func TestReduce_BoundedForAnyBudget(t *testing.T) {
	accounts := []domain.Account{{ID: "T", Balance: 5000, IsTreasury: true}}
	for i := 0; i < 300; i++ {
		accounts = append(accounts, domain.Account{ID: fmt.Sprintf("w%03d", i), Balance: float64(i*i + 1)})
	}
	var transfers []domain.Transfer
	for i := 0; i < 299; i++ {
		transfers = append(transfers, domain.Transfer{
			Timestamp: time.Unix(int64(1700000000+i), 0).UTC(),
			Sender:    fmt.Sprintf("w%03d", i),
			Receiver:  fmt.Sprintf("w%03d", i+1),
			Amount:    1,
		})
	}
	g := buildGraph(t, accounts, transfers)

	for _, maxNodes := range []int{1, 2, 3, 5, 17, 100, 300} {
		t.Run(fmt.Sprintf("max=%d", maxNodes), func(t *testing.T) {
			opts := DefaultOptions()
			opts.MaxNodes = maxNodes
			out, err := Reduce(g, opts)
			if err != nil {
				t.Fatalf("Reduce failed: %v", err)
			}
			if len(out.Nodes) > maxNodes {
				t.Errorf("Expected at most %d nodes, got %d", maxNodes, len(out.Nodes))
			}
			assertConserved(t, g, out)
			assertNoDangling(t, out)
			if maxNodes >= 2 && out.TreasuryID != "T" {
				t.Errorf("Expected treasury kept, got %q", out.TreasuryID)
			}

			constituents := 0
			for _, n := range out.Nodes {
				if n.IsAggregate {
					constituents += n.ConstituentCount
				} else {
					constituents++
				}
			}
			if constituents != len(g.Nodes) {
				t.Errorf("Expected %d constituents, got %d", len(g.Nodes), constituents)
			}
		})
	}
}

func TestReduce_KeepsSignificantWhenBucketsMerge(t *testing.T) {
	var accounts []domain.Account
	for i := 0; i < 9; i++ {
		accounts = append(accounts, domain.Account{ID: fmt.Sprintf("0.0.%d", 100+i), Balance: 60})
	}
	// 460 of 1000 spread over the 0%..4% buckets.
	small := []struct {
		balance float64
		count   int
	}{{45, 4}, {35, 4}, {25, 4}, {15, 2}, {5, 2}}
	next := 200
	for _, s := range small {
		for i := 0; i < s.count; i++ {
			accounts = append(accounts, domain.Account{ID: fmt.Sprintf("0.0.%d", next), Balance: s.balance})
			next++
		}
	}
	g := buildGraph(t, accounts, nil)

	out, err := Reduce(g, Options{MaxNodes: 10, MinBalanceFraction: 0.05, BucketWidth: 1})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(out.Nodes) != 10 {
		t.Fatalf("Expected 10 nodes, got %d", len(out.Nodes))
	}
	individual, aggregates := 0, 0
	for _, n := range out.Nodes {
		if n.IsAggregate {
			aggregates++
			if n.ConstituentCount != 16 {
				t.Errorf("Expected 16 members in the merged bucket, got %d", n.ConstituentCount)
			}
		} else {
			individual++
		}
	}
	if individual != 9 || aggregates != 1 {
		t.Errorf("Expected 9 wallets and 1 bucket, got %d and %d", individual, aggregates)
	}
	assertConserved(t, g, out)
}

func TestReduce_MergesParallelLinks(t *testing.T) {
	accounts := []domain.Account{
		{ID: "whale", Balance: 10000},
		{ID: "a", Balance: 1},
		{ID: "b", Balance: 1},
		{ID: "c", Balance: 1},
	}
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	transfers := []domain.Transfer{
		{Timestamp: early, Sender: "whale", Receiver: "a", Amount: 2},
		{Timestamp: late, Sender: "whale", Receiver: "b", Amount: 3},
		{Timestamp: early, Sender: "a", Receiver: "b", Amount: 1},
	}
	g := buildGraph(t, accounts, transfers)

	out, err := Reduce(g, Options{MaxNodes: 2, MinBalanceFraction: 0.01, BucketWidth: 1})
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(out.Nodes) != 2 {
		t.Fatalf("Expected whale + one bucket, got %d nodes", len(out.Nodes))
	}
	if out.Nodes[0].ID != "whale" || !out.Nodes[1].IsAggregate || out.Nodes[1].ConstituentCount != 3 {
		t.Errorf("Unexpected nodes: %+v", out.Nodes)
	}

	// a->b collapses into the bucket and is dropped; whale->a and whale->b merge.
	if len(out.Links) != 1 {
		t.Fatalf("Expected 1 merged link, got %d", len(out.Links))
	}
	l := out.Links[0]
	if l.Value != 5 || l.Count != 2 {
		t.Errorf("Expected value 5 count 2, got value %v count %d", l.Value, l.Count)
	}
	if !l.Timestamp.Equal(late) || len(l.Timestamps) != 2 {
		t.Errorf("Expected latest timestamp and both constituents, got %v %v", l.Timestamp, l.Timestamps)
	}
	assertConserved(t, g, out)
}

func TestReduce_Deterministic(t *testing.T) {
	g := buildGraph(t, uniformAccounts(50, 2), nil)
	opts := Options{MaxNodes: 5, MinBalanceFraction: 0.5, BucketWidth: 1}

	a, err := Reduce(g, opts)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	b, err := Reduce(g, opts)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(a.Nodes) != len(b.Nodes) {
		t.Fatalf("Node counts differ: %d vs %d", len(a.Nodes), len(b.Nodes))
	}
	for i := range a.Nodes {
		if a.Nodes[i].ID != b.Nodes[i].ID {
			t.Errorf("Node %d differs: %s vs %s", i, a.Nodes[i].ID, b.Nodes[i].ID)
		}
	}
}

func TestMergeBuckets_Limit(t *testing.T) {
	buckets := map[int]*bucket{}
	for k := 0; k < 10; k++ {
		buckets[k] = &bucket{key: k, value: 1, members: []string{fmt.Sprint(k)}}
	}
	groups := mergeBuckets(buckets, 3)
	if len(groups) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(groups))
	}
	total := 0.0
	for _, g := range groups {
		total += g.value
	}
	if total != 10 {
		t.Errorf("Expected merged value 10, got %v", total)
	}
}
