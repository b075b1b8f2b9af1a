package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, data string) *Suite {
	t.Helper()
	s, err := Parse([]byte(data))
	require.NoError(t, err)
	return s
}

func TestParseDerivesEntryNamesFromStems(t *testing.T) {
	s := mustParse(t, `{
		"name": "smoke",
		"tests": [
			{"route": "routes/peon_quests.json"},
			{"route": "kobold_camp", "dependsOn": ["peon_quests"]}
		]
	}`)

	require.Len(t, s.Entries, 2)
	assert.Equal(t, "peon_quests", s.Entries[0].Name)
	assert.Equal(t, "kobold_camp", s.Entries[1].Name)
	assert.Equal(t, []string{"peon_quests"}, s.Entries[1].DependsOn)
}

func TestValidateRejectsEmptyRoute(t *testing.T) {
	s := &Suite{Name: "bad", Entries: []Entry{{Name: "", Route: ""}}}
	errs := s.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "empty route")
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	s := &Suite{Name: "bad", Entries: []Entry{
		{Name: "a", Route: "a.json", DependsOn: []string{"ghost"}},
	}}
	errs := s.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `unknown entry "ghost"`)
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	s := &Suite{Name: "bad", Entries: []Entry{
		{Name: "a", Route: "a.json"},
		{Name: "a", Route: "sub/a.json"},
	}}
	errs := s.Validate()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "duplicate")
}

func TestValidateDetectsCycle(t *testing.T) {
	s := &Suite{Name: "cyclic", Entries: []Entry{
		{Name: "a", Route: "a.json", DependsOn: []string{"b"}},
		{Name: "b", Route: "b.json", DependsOn: []string{"a"}},
	}}
	errs := s.Validate()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[len(errs)-1].Error(), "cycle")

	_, err := s.ExecutionLevels()
	assert.Error(t, err)
}

func TestParseRejectsCyclicSuite(t *testing.T) {
	_, err := Parse([]byte(`{
		"name": "cyclic",
		"tests": [
			{"route": "a", "dependsOn": ["b"]},
			{"route": "b", "dependsOn": ["a"]}
		]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestExecutionLevelsGroupByDependencyDepth(t *testing.T) {
	s := mustParse(t, `{
		"name": "diamond",
		"tests": [
			{"route": "a"},
			{"route": "b", "dependsOn": ["a"]},
			{"route": "c", "dependsOn": ["a"]},
			{"route": "d", "dependsOn": ["b", "c"]}
		]
	}`)

	levels, err := s.ExecutionLevels()
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, "a", levels[0][0].Name)
	assert.Len(t, levels[1], 2)
	assert.Equal(t, "d", levels[2][0].Name)

	order, err := s.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)
	assert.Equal(t, "a", order[0].Name)
	assert.Equal(t, "d", order[3].Name)
}

func TestResolveRoutePrecedence(t *testing.T) {
	tmp := t.TempDir()
	suitesDir := filepath.Join(tmp, "suites")
	routesDir := filepath.Join(tmp, "routes")
	require.NoError(t, os.MkdirAll(suitesDir, 0o755))
	require.NoError(t, os.MkdirAll(routesDir, 0o755))

	s := &Suite{Name: "res", Path: filepath.Join(suitesDir, "res.json")}

	// Only in the configured routes dir.
	require.NoError(t, os.WriteFile(filepath.Join(routesDir, "only_routes.json"), []byte("{}"), 0o644))
	got, err := s.ResolveRoute("only_routes", routesDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(routesDir, "only_routes.json"), got)

	// Suite dir wins over everything else.
	require.NoError(t, os.WriteFile(filepath.Join(suitesDir, "shared.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "shared.json"), []byte("{}"), 0o644))
	got, err = s.ResolveRoute("shared.json", routesDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(suitesDir, "shared.json"), got)

	// Suite dir's parent comes before the routes dir.
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "parent_only.json"), []byte("{}"), 0o644))
	got, err = s.ResolveRoute("parent_only", routesDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "parent_only.json"), got)

	_, err = s.ResolveRoute("missing", routesDir)
	assert.Error(t, err)
}

// genAcyclicSuite builds random suites where every entry depends only on a
// subset of earlier entries, so the graph is acyclic by construction.
func genAcyclicSuite() gopter.Gen {
	return gen.IntRange(1, 12).FlatMap(func(v interface{}) gopter.Gen {
		n := v.(int)
		return gen.SliceOfN(n, gen.IntRange(0, 1<<12)).Map(func(masks []int) *Suite {
			s := &Suite{Name: "generated"}
			for i := 0; i < n; i++ {
				e := Entry{Name: fmt.Sprintf("t%d", i), Route: fmt.Sprintf("t%d.json", i)}
				for j := 0; j < i; j++ {
					if masks[i]&(1<<j) != 0 {
						e.DependsOn = append(e.DependsOn, fmt.Sprintf("t%d", j))
					}
				}
				s.Entries = append(s.Entries, e)
			}
			return s
		})
	}, reflect.TypeOf(&Suite{}))
}

func TestSuiteProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("acyclic suites validate", prop.ForAll(
		func(s *Suite) bool {
			return len(s.Validate()) == 0
		},
		genAcyclicSuite(),
	))

	properties.Property("topological order covers every entry and respects edges", prop.ForAll(
		func(s *Suite) bool {
			order, err := s.TopologicalOrder()
			if err != nil || len(order) != len(s.Entries) {
				return false
			}
			pos := make(map[string]int, len(order))
			for i, e := range order {
				pos[e.Name] = i
			}
			for _, e := range order {
				for _, dep := range e.DependsOn {
					if pos[dep] >= pos[e.Name] {
						return false
					}
				}
			}
			return true
		},
		genAcyclicSuite(),
	))

	properties.Property("injecting a back edge is caught", prop.ForAll(
		func(s *Suite) bool {
			if len(s.Entries) < 2 {
				return true
			}
			// Entry 0 gains a dependency on the last entry, and the last
			// entry is forced to depend on entry 0.
			last := &s.Entries[len(s.Entries)-1]
			last.DependsOn = append(last.DependsOn, s.Entries[0].Name)
			s.Entries[0].DependsOn = append(s.Entries[0].DependsOn, last.Name)
			return len(s.Validate()) > 0
		},
		genAcyclicSuite(),
	))

	properties.TestingRun(t)
}
