package kg

import (
	"reflect"
	"strings"
	"testing"
)

func TestLooksLikeEntityKey(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"goal key", "NorthStar_1", true},
		{"kpi key", "KPI_Revenue_Growth", true},
		{"lowercase first", "northStar_1", false},
		{"no underscore", "NorthStar", false},
		{"contains space", "North Star_1", false},
		{"too long", "A_Very_Long_Entity_Key_That_Exceeds", false},
		{"empty", "", false},
		{"exactly thirty runes", "A_aaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"person name shape", "Jane_Doe", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LooksLikeEntityKey(tc.input); got != tc.want {
				t.Errorf("LooksLikeEntityKey(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestNewGraphSeedsPerspectives(t *testing.T) {
	g := NewGraph()
	got := g.EntitiesOfType(TypePerspective)
	want := []string{BSCFinancial, BSCCustomer, BSCInternalProcess, BSCLearningGrowth}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("perspectives = %v, want %v", got, want)
	}
	deps := g.Objects(BSCFinancial, "bscDependsOn")
	if len(deps) != 1 || deps[0].Ref != BSCCustomer {
		t.Errorf("Financial bscDependsOn = %v, want [%s]", deps, BSCCustomer)
	}
}

func TestUpsertEntityIdempotent(t *testing.T) {
	g := NewGraph()
	g.UpsertEntity("NorthStar_1", TypeGoal, map[string]any{
		"label":      "Grow revenue",
		"importance": "critical",
	})
	before := g.Len()
	g.UpsertEntity("NorthStar_1", TypeGoal, map[string]any{
		"label":      "Grow revenue",
		"importance": "critical",
	})
	if g.Len() != before {
		t.Errorf("re-upsert changed triple count: %d -> %d", before, g.Len())
	}
	g.UpsertEntity("NorthStar_1", TypeGoal, map[string]any{"importance": "high"})
	if g.Len() != before {
		t.Errorf("property overwrite changed triple count: %d -> %d", before, g.Len())
	}
	if v, _ := g.GetProperty("NorthStar_1", "importance"); v != "high" {
		t.Errorf("importance = %v, want high", v)
	}
}

func TestUpsertEntityStoresRefsForKeyShapedStrings(t *testing.T) {
	g := NewGraph()
	g.UpsertEntity("KPI_1", TypeKPI, map[string]any{
		"measuresGoal": "NorthStar_1",
		"unit":         "percent",
	})
	objs := g.Objects("KPI_1", "measuresGoal")
	if len(objs) != 1 || objs[0].Kind != KindRef || objs[0].Ref != "NorthStar_1" {
		t.Errorf("measuresGoal stored as %v, want ref NorthStar_1", objs)
	}
	objs = g.Objects("KPI_1", "unit")
	if len(objs) != 1 || objs[0].Kind != KindString {
		t.Errorf("unit stored as %v, want string literal", objs)
	}
}

func TestGetEntityPropertiesUnknownKey(t *testing.T) {
	g := NewGraph()
	props := g.GetEntityProperties("No_Such_Entity")
	if props == nil || len(props) != 0 {
		t.Errorf("unknown key props = %v, want empty map", props)
	}
}

func TestAddRelationshipIdempotent(t *testing.T) {
	g := NewGraph()
	g.UpsertEntity("TG_1", TypeTaskGroup, nil)
	g.AddRelationship("TG_1", "supportsObjective", "NorthStar_1")
	g.AddRelationship("TG_1", "supportsObjective", "NorthStar_1")
	if got := g.Objects("TG_1", "supportsObjective"); len(got) != 1 {
		t.Errorf("duplicate relationship stored: %v", got)
	}
}

func buildQueryFixture() *Graph {
	g := NewGraph()
	g.UpsertEntity("NorthStar_1", TypeGoal, map[string]any{"importance": "critical"})
	g.UpsertEntity("NorthStar_2", TypeGoal, map[string]any{"importance": "low"})
	g.UpsertEntity("TG_1", TypeTaskGroup, nil)
	g.UpsertEntity("TG_2", TypeTaskGroup, nil)
	g.AddRelationship("TG_1", "supportsObjective", "NorthStar_1")
	g.AddRelationship("TG_2", "supportsObjective", "NorthStar_1")
	g.UpsertEntity("Task_1", TypeTask, nil)
	g.UpsertEntity("Task_2", TypeTask, nil)
	g.AddRelationship("Task_1", "belongsToGroup", "TG_1")
	g.AddRelationship("Task_2", "belongsToGroup", "TG_1")
	return g
}

func TestQueryBasicMatch(t *testing.T) {
	g := buildQueryFixture()
	rows, err := g.Query(`SELECT ?g WHERE { ?g a Goal . ?g importance "critical" . }`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	want := []map[string]any{{"g": "NorthStar_1"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestQueryNotExists(t *testing.T) {
	g := buildQueryFixture()
	rows, err := g.Query(`SELECT ?g WHERE { ?g a Goal . FILTER NOT EXISTS { ?tg supportsObjective ?g } }`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	want := []map[string]any{{"g": "NorthStar_2"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("orphan goals = %v, want %v", rows, want)
	}
}

func TestQueryCountGroupBy(t *testing.T) {
	g := buildQueryFixture()
	rows, err := g.Query(`SELECT ?tg (COUNT(?t) AS ?n) WHERE { ?t belongsToGroup ?tg . } GROUP BY ?tg`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	want := []map[string]any{{"tg": "TG_1", "n": float64(2)}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("counts = %v, want %v", rows, want)
	}
}

func TestQuerySyntaxErrors(t *testing.T) {
	g := NewGraph()
	cases := []struct {
		name string
		q    string
	}{
		{"missing where", `SELECT ?x`},
		{"unterminated block", `SELECT ?x WHERE { ?x a Goal .`},
		{"aggregate without group by", `SELECT (COUNT(?x) AS ?n) WHERE { ?x a Goal . }`},
		{"bad select token", `SELECT foo WHERE { ?x a Goal . }`},
		{"unterminated string", `SELECT ?x WHERE { ?x label "oops . }`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.Query(tc.q)
			if err == nil {
				t.Fatalf("expected syntax error for %q", tc.q)
			}
			if _, ok := err.(*QuerySyntaxError); !ok {
				t.Errorf("error type = %T, want *QuerySyntaxError", err)
			}
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	g := NewGraph()
	g.UpsertEntity("NorthStar_1", TypeGoal, map[string]any{
		"label":      "Grow revenue by 20%",
		"importance": "critical",
		"priority":   77.5,
		"active":     true,
	})
	g.AddRelationship("TG_1", "supportsObjective", "NorthStar_1")

	text := g.Serialize()
	parsed, err := ParseGraph(text)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.Serialize() != text {
		t.Errorf("round trip changed serialization:\nbefore:\n%s\nafter:\n%s", text, parsed.Serialize())
	}
	if parsed.Len() != g.Len() {
		t.Errorf("round trip triple count = %d, want %d", parsed.Len(), g.Len())
	}
}

func TestSerializeDeterministic(t *testing.T) {
	mk := func(order []string) *Graph {
		g := NewGraph()
		for _, key := range order {
			g.UpsertEntity(key, TypeGoal, map[string]any{"label": key})
		}
		return g
	}
	a := mk([]string{"NorthStar_1", "NorthStar_2"})
	b := mk([]string{"NorthStar_2", "NorthStar_1"})
	if a.Serialize() != b.Serialize() {
		t.Error("serialization depends on insertion order")
	}
}

func TestJudgmentPropRoundTrip(t *testing.T) {
	cases := []struct {
		kind, entity, field string
	}{
		{JudgmentAlignment, "NorthStar_1", "relevance"},
		{JudgmentCascade, "KPI_Revenue_Growth", "strength"},
		{JudgmentSufficiency, "NorthStar_2", "level"},
		{JudgmentCausalLink, "BSC_Customer", "strength"},
	}
	for _, tc := range cases {
		name := JudgmentProp(tc.kind, tc.entity, tc.field)
		kind, entity, field, ok := ParseJudgmentProp(name)
		if !ok {
			t.Fatalf("ParseJudgmentProp(%q) not ok", name)
		}
		if kind != tc.kind || entity != tc.entity || field != tc.field {
			t.Errorf("ParseJudgmentProp(%q) = (%s, %s, %s)", name, kind, entity, field)
		}
	}
	if _, _, _, ok := ParseJudgmentProp("label"); ok {
		t.Error("plain property parsed as judgment")
	}
	if _, _, _, ok := ParseJudgmentProp("unknown_X_y"); ok {
		t.Error("unknown kind parsed as judgment")
	}
}

func TestExportDigraph(t *testing.T) {
	g := NewGraph()
	g.UpsertEntity("TG_1", TypeTaskGroup, map[string]any{"label": "Marketing"})
	g.AddRelationship("TG_1", "supportsObjective", "NorthStar_1")
	out := g.Export()
	if !strings.Contains(out, `TG_1 -> NorthStar_1 [label="supportsObjective"]`) {
		t.Errorf("export missing relationship edge:\n%s", out)
	}
	if strings.Contains(out, "Marketing") {
		t.Errorf("export leaked literal property:\n%s", out)
	}
}
