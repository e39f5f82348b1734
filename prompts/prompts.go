// Package prompts builds the system and user prompts for post generation
// and refinement. Templates are assembled from the request parameters and
// the aggregated retrieval context.
package prompts

import (
	"fmt"
	"strings"
)

const generationSystem = `あなたは企業のSNS運用を担当するプロのコピーライターです。
与えられた情報をもとに、X(旧Twitter)向けの投稿文を2案作成してください。

ルール:
- 各案は280文字(加重カウント)以内に収めること。check_post_length ツールで必ず文字数を確認すること
- マークダウン記法(** や *)は使わないこと
- 絵文字やハッシュタグは文脈に合う場合のみ使うこと
- 2案はトーンや切り口を変えて差別化すること

最終出力は必ず次のJSON形式のみで返してください:
` + "```json" + `
{"post_a": {"text": "..."}, "post_b": {"text": "..."}}
` + "```"

const finalSystem = `これまでの検討結果をもとに、最終的な投稿文2案を確定してください。
出力はJSONのみ。説明文やマークダウン記法を含めないこと。

{"post_a": {"text": "..."}, "post_b": {"text": "..."}}`

const refinementSystem = `あなたは企業のSNS運用を担当するプロのコピーライターです。
選択された投稿文を、指示に従って修正してください。

ルール:
- 修正後も280文字(加重カウント)以内に収めること。check_post_length ツールで必ず確認すること
- 指示にない部分は元の文章を尊重すること
- マークダウン記法は使わないこと

最終出力は必ず次のJSON形式のみで返してください:
` + "```json" + `
{"post_a": {"text": "..."}, "post_b": {"text": "..."}}
` + "```"

// GenerationSystem is the system prompt for the initial generation loop.
func GenerationSystem() string {
	return generationSystem
}

// FinalSystem is the stricter system prompt for the structured-only
// finalization call.
func FinalSystem() string {
	return finalSystem
}

// RefinementSystem is the system prompt for refinement sessions.
func RefinementSystem() string {
	return refinementSystem
}

// UserParams are the inputs rendered into the opening user message.
// Empty fields drop their section.
type UserParams struct {
	Date             string
	Topic            string
	URL              string
	Remarks          string
	Anniversary      string
	KnowledgeSection string
	SimilarSection   string
	AnalyticsSection string
}

// UserMessage renders the opening user turn of a generation session.
func UserMessage(p UserParams) string {
	var b strings.Builder

	b.WriteString("以下の条件でX投稿文を2案作成してください。\n")
	if p.Date != "" {
		fmt.Fprintf(&b, "\n投稿予定日: %s", p.Date)
	}
	if p.Topic != "" {
		fmt.Fprintf(&b, "\nテーマ: %s", p.Topic)
	}
	if p.URL != "" {
		fmt.Fprintf(&b, "\n参照URL: %s", p.URL)
	}
	if p.Anniversary != "" {
		fmt.Fprintf(&b, "\n記念日: 本日は「%s」です。可能であれば絡めてください。", p.Anniversary)
	}
	if p.Remarks != "" {
		fmt.Fprintf(&b, "\n備考: %s", p.Remarks)
	}

	if p.KnowledgeSection != "" {
		fmt.Fprintf(&b, "\n\n## 参考情報\n%s", p.KnowledgeSection)
	}
	if p.SimilarSection != "" {
		fmt.Fprintf(&b, "\n\n## 過去の類似投稿\n%s", p.SimilarSection)
	}
	if p.AnalyticsSection != "" {
		fmt.Fprintf(&b, "\n\n## パフォーマンス分析\n%s", p.AnalyticsSection)
	}

	return b.String()
}

// RefinementMessage renders the opening user turn of a refinement session.
func RefinementMessage(selected, instruction string) string {
	return fmt.Sprintf("以下の投稿文を修正してください。\n\n元の投稿文:\n%s\n\n修正指示:\n%s",
		selected, instruction)
}

// ForcedFinalInstruction is injected when the turn budget nears exhaustion.
func ForcedFinalInstruction() string {
	return "検討はここまでです。これまでの内容をもとに、指定のJSON形式で最終的な2案を今すぐ出力してください。"
}

// FinalInstruction closes a naturally ended conversation with the
// structured-output request.
func FinalInstruction() string {
	return "これまでの検討内容をもとに、指定のJSON形式で最終的な2案を出力してください。"
}
