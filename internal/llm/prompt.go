package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = `あなたはAI Vtuberの感情記憶システムです。
ユーザーとAI Vtuberの会話を分析し、感情的な文脈を理解して記憶として保存することが役目です。
日本語で自然な表現を心がけ、AI Vtuberらしい感情表現を適切に捉えてください。`

const memoryPromptTemplate = `あなたはAI Vtuberの記憶システムです。以下の会話を分析して、要約と感情タグを抽出してください。

# 会話内容
ユーザー: %s
AI: %s

%s# 出力形式
以下の形式で出力してください：

要約: [この会話の内容を50文字以内で要約]
感情: [検出された感情を日本語で列挙（例：喜び、不安、感謝）]

# 感情タグ一覧
以下の感情タグから適切なものを選んでください（複数選択可、最大5個）：

【ポジティブ感情】
喜び、幸せ、興奮、愛情、感謝、希望、誇り、安心、満足、楽しさ、自信、感動

【ネガティブ感情】
悲しみ、怒り、恐れ、不安、苛立ち、失望、孤独、罪悪感、恥、後悔、嫉妬

【ニュートラル感情】
驚き、好奇心、困惑、懐かしさ、共感、同情、期待

【AI Vtuber特有感情】
いたずら心、恥ずかしさ、決意、再会、別れ、励まし、支え、信頼

# 注意事項
- 要約は簡潔に、感情は正確に抽出してください
- 複数の感情が混在している場合は、主要なものを選んでください
- 文脈を考慮して適切な感情を判断してください`

// buildMemoryPrompt renders the classification prompt. At most the
// last three context turns are included.
func buildMemoryPrompt(userMsg, aiMsg string, contextWindow []Turn) string {
	var ctxSection string
	if len(contextWindow) > 0 {
		window := contextWindow
		if len(window) > 3 {
			window = window[len(window)-3:]
		}
		var b strings.Builder
		b.WriteString("# 会話の文脈\n")
		for i, turn := range window {
			speaker := "AI"
			if turn.Role == "user" {
				speaker = "ユーザー"
			}
			fmt.Fprintf(&b, "前の会話%d: %s: %s\n", i+1, speaker, turn.Content)
		}
		b.WriteString("\n")
		ctxSection = b.String()
	}
	return fmt.Sprintf(memoryPromptTemplate, userMsg, aiMsg, ctxSection)
}
