package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clause_lens/internal/clause"
	"clause_lens/internal/config"
	"clause_lens/internal/llm"
	"clause_lens/internal/logger"
	"clause_lens/internal/planner"
	"clause_lens/internal/risk"
	"clause_lens/internal/segmenter"
)

func segmentConfig() config.SegmentConfig {
	return config.SegmentConfig{
		MaxTokens:       6000,
		CharsPerToken:   3.5,
		MinBatchBlocks:  3,
		MaxBatchBlocks:  40,
		PreviewChars:    1200,
		MinPreviewChars: 200,
	}
}

func newParser(t *testing.T, svc llm.Service, seg config.SegmentConfig) *Parser {
	t.Helper()
	p, err := NewParser(svc, risk.Default(), seg, time.Minute, logger.Nop())
	require.NoError(t, err)
	return p
}

// pairingService группирует блоки запроса по два и запоминает запросы
type pairingService struct {
	mu       sync.Mutex
	requests []llm.Request
	reply    func(req llm.Request) string
}

func (s *pairingService) Name() string { return "pairing" }

func (s *pairingService) Segment(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.reply != nil {
		return s.reply(req), nil
	}

	var out []map[string]any
	for i := 0; i < len(req.Blocks); i += 2 {
		ids := []string{req.Blocks[i].ID}
		if i+1 < len(req.Blocks) {
			ids = append(ids, req.Blocks[i+1].ID)
		}
		out = append(out, map[string]any{"sourceBlockIds": ids, "type": "paragraph", "confidence": 0.8})
	}
	data, _ := json.Marshal(map[string]any{"clauses": out})
	return string(data), nil
}

func longContract(n int) string {
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, fmt.Sprintf("§ %d Regelung %d\nDer Mieter zahlt im Monat %d eine Pauschale für Nebenkosten.", i, i, i))
	}
	return strings.Join(parts, "\n\n")
}

func TestParseLiabilityClauseWithoutService(t *testing.T) {
	res, err := newParser(t, nil, segmentConfig()).Parse(context.Background(),
		"§ 1 Haftung\nDer Vermieter haftet nicht für Schäden.", Options{DetectRisk: true})
	require.NoError(t, err)

	require.Len(t, res.Clauses, 1)
	c := res.Clauses[0]
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "Haftung", c.Title)
	assert.Equal(t, "§ 1", c.Number)
	assert.Contains(t, []risk.Level{risk.LevelMedium, risk.LevelHigh}, c.RiskLevel)
	assert.False(t, c.NonAnalyzable.Flag)
	assert.Equal(t, segmenter.StructureConfidence, c.Confidence)

	assert.Equal(t, 1, res.TotalClauses)
	assert.False(t, res.Metadata.UsedSemanticSegmenter)
	assert.Equal(t, Version, res.Metadata.ParserVersion)
	assert.Equal(t, 1, res.RiskSummary.Medium+res.RiskSummary.High)
}

func TestParseRejectsEmptyInput(t *testing.T) {
	p := newParser(t, nil, segmentConfig())
	for _, text := range []string{"", "  \n\t \r\n"} {
		_, err := p.Parse(context.Background(), text, Options{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestParseCoverageAcrossBatches(t *testing.T) {
	seg := segmentConfig()
	seg.MaxTokens = segmenter.PromptOverheadTokens(seg.CharsPerToken, "Mietvertrag") + 120
	svc := &pairingService{}
	text := longContract(30)

	res, err := newParser(t, svc, seg).Parse(context.Background(), text, Options{DetectRisk: true, ContractName: "Mietvertrag"})
	require.NoError(t, err)

	assert.Greater(t, res.Metadata.BatchCount, 1)
	assert.Len(t, svc.requests, res.Metadata.BatchCount)
	assert.True(t, res.Metadata.UsedSemanticSegmenter)
	assert.Zero(t, res.Metadata.FallbackBatches)

	seen := make(map[string]int)
	for _, c := range res.Clauses {
		for _, id := range c.SourceBlockIDs {
			seen[id]++
		}
	}
	assert.Len(t, seen, res.Metadata.BlockCount)
	for id, n := range seen {
		assert.Equal(t, 1, n, "block %s", id)
	}

	for _, req := range svc.requests {
		assert.Equal(t, "Mietvertrag", req.ContractName)
		assert.LessOrEqual(t, requestTokens(t, req, seg.CharsPerToken), seg.MaxTokens)
	}
}

// requestTokens - оценка всего запроса: системный промпт и сериализованное сообщение с блоками
func requestTokens(t *testing.T, req llm.Request, charsPerToken float64) int {
	t.Helper()
	user, err := llm.BuildUserPrompt(req)
	require.NoError(t, err)
	return planner.EstimateTokens(req.SystemInstruction, charsPerToken) + planner.EstimateTokens(user, charsPerToken)
}

func quotedContract(n int) string {
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		var b strings.Builder
		fmt.Fprintf(&b, "Absatz %d: Der Mieter bestätigt \"die Übergabe\" der Räume.", i)
		for b.Len() < 480 {
			b.WriteString(" Er verpflichtet sich, \"Schäden\" unverzüglich <schriftlich> anzuzeigen.")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}

func TestParseRequestsStayWithinTokenLimit(t *testing.T) {
	seg := segmentConfig()
	svc := &pairingService{}

	res, err := newParser(t, svc, seg).Parse(context.Background(), quotedContract(200),
		Options{ContractName: `Mietvertrag "Lindenhof" <Berlin & Co>`})
	require.NoError(t, err)

	assert.Equal(t, 200, res.Metadata.BlockCount)
	assert.Zero(t, res.Metadata.FallbackBatches)
	require.Len(t, svc.requests, res.Metadata.BatchCount)
	for i, req := range svc.requests {
		assert.LessOrEqual(t, requestTokens(t, req, seg.CharsPerToken), seg.MaxTokens, "request %d", i)
		for _, b := range req.Blocks {
			assert.NotContains(t, b.TextPreview, "…", "previews fit without truncation")
		}
	}
}

func TestParseDropsContractNameOverBudget(t *testing.T) {
	seg := segmentConfig()
	seg.MaxTokens = segmenter.PromptOverheadTokens(seg.CharsPerToken, "") + 40
	svc := &pairingService{}
	name := strings.Repeat("<", segmenter.MaxContractNameRunes)

	res, err := newParser(t, svc, seg).Parse(context.Background(), longContract(3), Options{ContractName: name})
	require.NoError(t, err)

	assert.Len(t, res.Clauses, 3)
	require.NotEmpty(t, svc.requests)
	for _, req := range svc.requests {
		assert.Empty(t, req.ContractName)
		assert.LessOrEqual(t, requestTokens(t, req, seg.CharsPerToken), seg.MaxTokens)
	}
}

func TestParseFallsBackWhenServiceReturnsNothing(t *testing.T) {
	svc := &pairingService{reply: func(llm.Request) string { return "[]" }}
	res, err := newParser(t, svc, segmentConfig()).Parse(context.Background(), longContract(5), Options{})
	require.NoError(t, err)

	assert.Equal(t, res.Metadata.BatchCount, res.Metadata.FallbackBatches)
	assert.False(t, res.Metadata.UsedSemanticSegmenter)
	require.Len(t, res.Clauses, res.Metadata.BlockCount)
	for _, c := range res.Clauses {
		assert.Less(t, c.Confidence, 0.5)
		assert.Equal(t, clause.ReasonSegmenterFallback, c.RecoveryReason)
	}
}

func TestParseRecoversOrphanAndDropsDuplicate(t *testing.T) {
	text := "Die Miete ist monatlich fällig.\n\nDie Miete ist MONATLICH fällig.\n\nGerichtsstand ist Berlin."
	svc := &pairingService{reply: func(llm.Request) string {
		return `[{"sourceBlockIds":["b1"]},{"sourceBlockIds":["b2"]}]`
	}}

	res, err := newParser(t, svc, segmentConfig()).Parse(context.Background(), text, Options{})
	require.NoError(t, err)

	require.Len(t, res.Clauses, 2)
	assert.Equal(t, "Die Miete ist monatlich fällig.", res.Clauses[0].Text)
	assert.Equal(t, []string{"b1", "b2"}, res.Clauses[0].SourceBlockIDs)
	assert.Equal(t, []string{"b3"}, res.Clauses[1].SourceBlockIDs)
	assert.Equal(t, clause.ReasonOrphanedBlock, res.Clauses[1].RecoveryReason)
	assert.Equal(t, 1, res.Metadata.RecoveredBlocks)
}

func TestParseWithoutRiskDetection(t *testing.T) {
	res, err := newParser(t, nil, segmentConfig()).Parse(context.Background(),
		"§ 1 Haftung\nDer Vermieter haftet nicht für Schäden.", Options{})
	require.NoError(t, err)

	require.Len(t, res.Clauses, 1)
	assert.Empty(t, res.Clauses[0].RiskLevel)
	assert.Zero(t, res.Clauses[0].RiskScore)
	assert.Empty(t, res.Clauses[0].RiskKeywords)
}

func TestParseFlagsSignatureBlock(t *testing.T) {
	text := "§ 1 Gegenstand\nDer Vermieter vermietet die Wohnung.\n\nUNTERSCHRIFTEN\n\nBerlin, den 01.02.2024\n\n____________________\n(Vermieter)"
	res, err := newParser(t, nil, segmentConfig()).Parse(context.Background(), text, Options{DetectRisk: true})
	require.NoError(t, err)

	require.NotEmpty(t, res.Clauses)
	last := res.Clauses[len(res.Clauses)-1]
	assert.True(t, last.NonAnalyzable.Flag, "clause %q", last.Text)
	assert.Positive(t, res.RiskSummary.NonAnalyzable)
}

func TestNewParserRejectsExhaustedBudget(t *testing.T) {
	seg := segmentConfig()
	seg.MaxTokens = 10

	_, err := NewParser(&pairingService{}, nil, seg, 0, nil)
	assert.Error(t, err)

	_, err = NewParser(nil, nil, seg, 0, nil)
	assert.NoError(t, err, "without a service the prompt is never sent")
}

func TestResultJSONShape(t *testing.T) {
	res, err := newParser(t, nil, segmentConfig()).Parse(context.Background(), longContract(2), Options{DetectRisk: true})
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"clauses", "totalClauses", "riskSummary", "metadata"} {
		assert.Contains(t, doc, key)
	}
	meta := doc["metadata"].(map[string]any)
	for _, key := range []string{"originalLength", "cleanedLength", "removedHeaderFooterCount", "usedSemanticSegmenter", "parsedAt", "parserVersion"} {
		assert.Contains(t, meta, key)
	}
	first := doc["clauses"].([]any)[0].(map[string]any)
	assert.Contains(t, first, "sourceBlockIds")
	assert.Contains(t, first, "nonAnalyzable")
}
