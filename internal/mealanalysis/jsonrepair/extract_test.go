package jsonrepair

import (
	"strings"
	"testing"
	"time"
)

func TestExtractValidJSONUsesFirstStrategyOnly(t *testing.T) {
	ext := Extract(`{"description":"Oatmeal","nutrients":[]}`)
	if !ext.OK() {
		t.Fatalf("expected object, got: %s", ext.Error())
	}
	if ext.Strategy != StrategyDirect {
		t.Fatalf("strategy: want=%s got=%s", StrategyDirect, ext.Strategy)
	}
	if len(ext.Attempts) != 1 {
		t.Fatalf("attempts: want=1 got=%d (%+v)", len(ext.Attempts), ext.Attempts)
	}
}

func TestExtractFencedBlockResolvesViaCodeBlock(t *testing.T) {
	text := "Here is the analysis:\n```json\n{\"description\": \"Grilled salmon\", \"feedback\": \"Great protein.\"}\n```\nLet me know if you need more."
	ext := Extract(text)
	if !ext.OK() {
		t.Fatalf("expected object, got: %s", ext.Error())
	}
	if ext.Strategy != StrategyCodeBlock {
		t.Fatalf("strategy: want=%s got=%s", StrategyCodeBlock, ext.Strategy)
	}
	if got := ext.Object["description"]; got != "Grilled salmon" {
		t.Fatalf("description: got=%v", got)
	}
	if len(ext.Attempts) != 3 || ext.Attempts[0].Error == "" || ext.Attempts[1].Error == "" {
		t.Fatalf("expected two recorded failures before success, got %+v", ext.Attempts)
	}
}

func TestExtractProseWrappedObjectUsesBalancedSpan(t *testing.T) {
	text := `Sure! {"description": "Pasta", "goalScore": {"overall": 6, "specific": {}}} Hope this helps {x}`
	ext := Extract(text)
	if ext.Strategy != StrategyBalancedSpan {
		t.Fatalf("strategy: want=%s got=%s (%s)", StrategyBalancedSpan, ext.Strategy, ext.Error())
	}
	gs, ok := ext.Object["goalScore"].(map[string]any)
	if !ok || gs["overall"] != float64(6) {
		t.Fatalf("goalScore: got=%v", ext.Object["goalScore"])
	}
}

func TestExtractRepairsNearJSON(t *testing.T) {
	text := "Result: {description: 'Chicken salad', 'suggestions': ['Add nuts', 'Less dressing',],\n feedback: \"Looks \\d good\", }"
	ext := Extract(text)
	if ext.Strategy != StrategyBalancedSpan {
		t.Fatalf("strategy: want=%s got=%s (%s)", StrategyBalancedSpan, ext.Strategy, ext.Error())
	}
	if ext.Object["description"] != "Chicken salad" {
		t.Fatalf("description: got=%v", ext.Object["description"])
	}
	sugg, _ := ext.Object["suggestions"].([]any)
	if len(sugg) != 2 {
		t.Fatalf("suggestions: got=%v", ext.Object["suggestions"])
	}
	if fb, _ := ext.Object["feedback"].(string); !strings.Contains(fb, "good") {
		t.Fatalf("feedback: got=%q", fb)
	}
}

func TestExtractEscapedJSON(t *testing.T) {
	ext := Extract(`{\"description\": \"Soup\", \"feedback\": \"Warm\"}`)
	if !ext.OK() || ext.Object["description"] != "Soup" {
		t.Fatalf("got %+v (%s)", ext.Object, ext.Error())
	}
}

func TestExtractTruncatedOutputReconstructsPairs(t *testing.T) {
	text := `{"description": "Beef burrito with rice", "nutrients": [{"name": "calories", "value": "650", "unit": "kcal"}, {"name": "protein", "value": "32", "unit": "g"}, {"name": "carbs", "val`
	ext := Extract(text)
	if ext.Strategy != StrategyKeyValue {
		t.Fatalf("strategy: want=%s got=%s (%s)", StrategyKeyValue, ext.Strategy, ext.Error())
	}
	if ext.Object["description"] != "Beef burrito with rice" {
		t.Fatalf("description: got=%v", ext.Object["description"])
	}
	nutrients, _ := ext.Object["nutrients"].([]any)
	if len(nutrients) != 2 {
		t.Fatalf("nutrients: want 2 complete items got=%v", ext.Object["nutrients"])
	}
	if _, leaked := ext.Object["name"]; leaked {
		t.Fatalf("nested key promoted to top level: %v", ext.Object)
	}
	if !ext.Strategy.Reconstructed() {
		t.Fatalf("key/value strategy should report reconstructed")
	}
}

func TestExtractFirstOccurrenceWins(t *testing.T) {
	obj := reconstruct(`"feedback": "first", junk "feedback": "second"`)
	if obj["feedback"] != "first" {
		t.Fatalf("feedback: got=%v", obj["feedback"])
	}
}

func TestExtractFragmentsFromProse(t *testing.T) {
	text := "I looked at the photo. This meal appears to be a bowl of ramen with egg. I would recommend adding some greens"
	ext := Extract(text)
	if ext.Strategy != StrategyFragments {
		t.Fatalf("strategy: want=%s got=%s (%s)", StrategyFragments, ext.Strategy, ext.Error())
	}
	if d, _ := ext.Object["description"].(string); !strings.Contains(d, "ramen") {
		t.Fatalf("description: got=%q", d)
	}
	if fb, _ := ext.Object["feedback"].(string); !strings.Contains(fb, "recommend") {
		t.Fatalf("feedback: got=%q", fb)
	}
}

func TestExtractFailureRecordsEveryStrategy(t *testing.T) {
	ext := Extract("zzzz 1234 ####")
	if ext.OK() {
		t.Fatalf("expected failure, got %+v", ext.Object)
	}
	if len(ext.Attempts) != len(order) {
		t.Fatalf("attempts: want=%d got=%d", len(order), len(ext.Attempts))
	}
	for _, a := range ext.Attempts {
		if a.Error == "" {
			t.Fatalf("attempt %s has no failure reason", a.Strategy)
		}
	}
	if ext.Error() == "" {
		t.Fatalf("expected summary error")
	}
}

func TestExtractNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"{",
		"}{",
		"[[[[[[",
		`{"a": "unterminated`,
		"```",
		"```json\n{\"description\": ",
		`description: {nutrients: [{name: [`,
		strings.Repeat("{\"a\":", 200),
		strings.Repeat("x", 1<<20),
		"'''''",
		`\"\"\"`,
	}
	for _, in := range inputs {
		_ = Extract(in)
	}
}

func TestExtractLargeProseIsBounded(t *testing.T) {
	inputs := map[string]string{
		"prose":   strings.Repeat("lorem ipsum dolor ", 10<<20/18),
		"labeled": strings.Repeat("description: x ", 10<<20/15),
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			ext := Extract(in)
			if elapsed := time.Since(start); elapsed > 10*time.Second {
				t.Fatalf("extraction took %s", elapsed)
			}
			if len(ext.Attempts) < 2 || ext.Attempts[1].Strategy != StrategyTruncate {
				t.Fatalf("truncation should be recorded after direct: %+v", ext.Attempts)
			}
		})
	}
}

func TestExtractSmallInputRecordsNoTruncation(t *testing.T) {
	for _, a := range Extract("no json here at all").Attempts {
		if a.Strategy == StrategyTruncate {
			t.Fatalf("unexpected truncate attempt")
		}
	}
}

func TestTruncateUTF8KeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes each
	got := truncateUTF8(s, 5)
	if got != "éé" {
		t.Fatalf("got %q", got)
	}
	if truncateUTF8("abc", 10) != "abc" {
		t.Fatalf("short input must be unchanged")
	}
}

func TestStrategyRank(t *testing.T) {
	if StrategyDirect.Rank() != 1 || StrategyFragments.Rank() != 5 || StrategyNone.Rank() != 0 {
		t.Fatalf("unexpected ranks")
	}
}
