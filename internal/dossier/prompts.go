package dossier

import (
	"fmt"
	"strings"
)

// candidateView 决策提示词中呈现给模型的候选档案
type candidateView struct {
	DossierID    string
	Title        string
	Summary      string
	ExampleFacts []string
	Hits         int
	ScoreSum     float64
}

// buildDecisionPrompt 构造归档仲裁提示词
// 模型只允许回答一个 {"action": ...} JSON 对象
func buildDecisionPrompt(packet *FactPacket, candidates []candidateView) string {
	var b strings.Builder

	b.WriteString("You are an archivist deciding where to file a packet of related facts.\n\n")
	b.WriteString(fmt.Sprintf("PACKET TOPIC: %s\n", packet.Label))
	b.WriteString("PACKET FACTS:\n")
	for _, f := range packet.Facts {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}

	b.WriteString("\nCANDIDATE DOSSIERS (ranked by relevance):\n")
	for i, c := range candidates {
		b.WriteString(fmt.Sprintf("%d. id=%s title=%q\n", i+1, c.DossierID, c.Title))
		if c.Summary != "" {
			b.WriteString(fmt.Sprintf("   summary: %s\n", c.Summary))
		}
		for _, ef := range c.ExampleFacts {
			b.WriteString("   fact: ")
			b.WriteString(ef)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nIf the packet clearly continues the subject of one candidate, respond with:\n")
	b.WriteString(`{"action": "append", "target_dossier_id": "<id of that candidate>"}` + "\n")
	b.WriteString("If it is a genuinely new subject, respond with:\n")
	b.WriteString(`{"action": "create"}` + "\n")
	b.WriteString("Respond with a single JSON object and nothing else.\n")

	return b.String()
}

// buildSummaryPrompt 构造摘要改写提示词
// 输入是旧摘要加本次新增事实;要求模型整体重写而非追加
func buildSummaryPrompt(title, currentSummary string, newFacts []string) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Rewrite the summary of the dossier %q.\n\n", title))
	if currentSummary != "" {
		b.WriteString("CURRENT SUMMARY:\n")
		b.WriteString(currentSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("NEW FACTS:\n")
	for _, f := range newFacts {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("\nWrite a concise 2-4 sentence summary that integrates the new facts into the\n")
	b.WriteString("current summary, building causal chains (\"Because X, therefore Y\") where they\n")
	b.WriteString("exist, without repeating what the current summary already covers.\n")
	b.WriteString("Respond with exactly one line starting with \"UPDATED SUMMARY:\" followed by the text.\n")

	return b.String()
}
