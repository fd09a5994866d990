package gardener

import (
	"fmt"
	"strings"
)

// buildClassifyPrompt 构造三启发式分类提示词
// 每条事实带轮次标注,要求模型只返回一个 JSON 对象
func buildClassifyPrompt(factLines []string) string {
	var b strings.Builder

	b.WriteString("You are a memory classifier for a conversational agent.\n")
	b.WriteString("Classify each fact below using exactly one of three heuristics:\n\n")
	b.WriteString("1. ENVIRONMENT TEST: Is this a persistent global setting, version, OS or language?\n")
	b.WriteString("   -> emit a global tag formatted as \"category: value\" (e.g. \"env: python-3.9\").\n")
	b.WriteString("2. CONSTRAINT TEST: Does this forbid or mandate a behavior?\n")
	b.WriteString("   -> emit either a global tag or a section rule scoped to a turn range.\n")
	b.WriteString("3. DEFINITION TEST: Is this a temporary alias or status marker bound to a turn range?\n")
	b.WriteString("   -> emit a section rule with start_turn, end_turn and rule_text.\n\n")
	b.WriteString("Any fact matching none of the three must be passed through VERBATIM in dossier_facts.\n")
	b.WriteString("Every fact lands in exactly one bucket.\n\n")
	b.WriteString("FACTS:\n")
	for _, line := range factLines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nRespond with a single JSON object:\n")
	b.WriteString(`{"global_tags": ["..."], "section_rules": [{"start_turn": "...", "end_turn": "...", "rule_text": "..."}], "dossier_facts": ["..."]}`)
	b.WriteString("\n")

	return b.String()
}

// buildGroupPrompt 构造语义分组提示词
// 所有事实一次送入,要求返回一个 JSON 数组的主题簇
func buildGroupPrompt(factLines []string) string {
	var b strings.Builder

	b.WriteString("Group the following facts into named thematic clusters.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Each cluster label is 2-5 words.\n")
	b.WriteString("- Every fact belongs to exactly one cluster, copied VERBATIM.\n")
	b.WriteString("- Prefer fewer, coherent clusters over many tiny ones.\n\n")
	b.WriteString("FACTS:\n")
	for i, line := range factLines {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, line))
	}
	b.WriteString("\nRespond with a single JSON array:\n")
	b.WriteString(`[{"label": "...", "facts": ["..."]}]`)
	b.WriteString("\n")

	return b.String()
}
