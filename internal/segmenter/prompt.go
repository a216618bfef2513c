package segmenter

import (
	"strings"

	"clause_lens/internal/chunker"
	"clause_lens/internal/llm"
	"clause_lens/internal/planner"
)

// SystemPrompt - инструкция сервису сегментации
const SystemPrompt = `Du bist ein Experte für deutsches Vertragsrecht. Du erhältst die Absätze (Blöcke) eines Vertrags
als JSON mit stabilen IDs. Gruppiere die Blöcke zu inhaltlich zusammenhängenden Klauseln.

Regeln:
- Jeder Block gehört zu genau einer Klausel. Lasse keinen Block aus.
- Eine Klausel besteht aus aufeinanderfolgenden Blöcken in Originalreihenfolge.
- Ein Abschnittstitel (z. B. "§ 3 Kündigung") gehört zur Klausel, die er einleitet.
- Erfinde keine Blöcke und ändere keine IDs. Der Text der Blöcke kann gekürzt sein ("…").
- Verwende nur die Typen paragraph, article, section, header, condition.

Antworte ausschließlich mit JSON in folgendem Format:
{"clauses":[{"title":"Kündigung","number":"§ 3","type":"paragraph","sourceBlockIds":["b4","b5"],"confidence":0.9}]}`

// MaxContractNameRunes - длиннее название договора в запрос не попадает
const MaxContractNameRunes = 120

// RequestName - название договора в том виде, в каком оно уходит сервису
func RequestName(name string) string {
	return chunker.Preview(strings.TrimSpace(name), MaxContractNameRunes)
}

// PromptOverheadTokens - часть запроса помимо записей блоков: системный промпт
// и JSON-обёртка пользовательского сообщения с названием договора
func PromptOverheadTokens(charsPerToken float64, contractName string) int {
	envelope, _ := llm.BuildUserPrompt(llm.Request{ContractName: RequestName(contractName)})
	return planner.EstimateTokens(SystemPrompt, charsPerToken) + planner.EstimateTokens(envelope, charsPerToken)
}
