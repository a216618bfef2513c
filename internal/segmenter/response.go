package segmenter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// rawClause - клауза из ответа сервиса до сверки с блоками
type rawClause struct {
	Title      string
	Number     string
	Type       string
	Text       string
	BlockIDs   []string
	Confidence float64
	HasConf    bool
}

var (
	trailingComma = regexp.MustCompile(`,\s*([\]}])`)
	blockIDWord   = regexp.MustCompile(`(?i)^(?:b|block)[\s_\-#]*(\d+)$`)
)

var blockIDKeys = []string{"sourceBlockIds", "sourceBlockIDs", "source_block_ids", "blockIds", "block_ids", "blocks", "ids"}

// parseResponse разбирает ответ сервиса: код-блоки срезаются, принимается как голый
// список, так и объект со списком внутри. Пустой список - не ошибка, решает вызывающий
func parseResponse(raw string) ([]rawClause, error) {
	payload, ok := extractJSONPayload(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON found", ErrMalformedResponse)
	}

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		repaired := trailingComma.ReplaceAllString(payload, "$1")
		if err2 := json.Unmarshal([]byte(repaired), &doc); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	items, err := clauseList(doc)
	if err != nil {
		return nil, err
	}

	clauses := make([]rawClause, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		clauses = append(clauses, decodeClause(obj))
	}
	if len(items) > 0 && len(clauses) == 0 {
		return nil, fmt.Errorf("%w: list contains no objects", ErrMalformedResponse)
	}
	return clauses, nil
}

// clauseList находит список клауз: голый массив, поле clauses, любое поле-массив объектов
// или единственный объект-клауза
func clauseList(doc any) ([]any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if list, ok := v["clauses"].([]any); ok {
			return list, nil
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if list, ok := v[k].([]any); ok && (len(list) == 0 || isObject(list[0])) {
				return list, nil
			}
		}
		for _, k := range blockIDKeys {
			if _, ok := v[k]; ok {
				return []any{v}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no clause list", ErrMalformedResponse)
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func decodeClause(obj map[string]any) rawClause {
	c := rawClause{
		Title:  asString(obj["title"]),
		Number: asString(obj["number"]),
		Type:   asString(obj["type"]),
		Text:   asString(obj["text"]),
	}
	for _, k := range blockIDKeys {
		if v, ok := obj[k]; ok {
			c.BlockIDs = asIDs(v)
			break
		}
	}
	if conf, ok := asFloat(obj["confidence"]); ok {
		c.Confidence, c.HasConf = conf, true
	}
	return c
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asIDs принимает массив строк/чисел или строку через запятую
func asIDs(v any) []string {
	var ids []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if id := normalizeBlockID(item); id != "" {
				ids = append(ids, id)
			}
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if id := normalizeBlockID(part); id != "" {
				ids = append(ids, id)
			}
		}
	default:
		if id := normalizeBlockID(t); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// normalizeBlockID приводит "3", 3, "B3", "block_3" к "b3"
func normalizeBlockID(v any) string {
	switch t := v.(type) {
	case float64:
		if t < 1 || t != float64(int(t)) {
			return ""
		}
		return "b" + strconv.Itoa(int(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return ""
		}
		if n, err := strconv.Atoi(s); err == nil {
			if n < 1 {
				return ""
			}
			return "b" + strconv.Itoa(n)
		}
		if m := blockIDWord.FindStringSubmatch(s); m != nil {
			n, _ := strconv.Atoi(m[1])
			return "b" + strconv.Itoa(n)
		}
		return s
	default:
		return ""
	}
}

// extractJSONPayload срезает ```-ограждения и находит первый сбалансированный JSON-массив или объект
func extractJSONPayload(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	candidate := trimmed
	if strings.HasPrefix(trimmed, "```") {
		if end := strings.Index(trimmed[3:], "```"); end != -1 {
			content := trimmed[3 : 3+end]
			if idx := strings.Index(content, "\n"); idx != -1 {
				content = content[idx+1:]
			}
			candidate = strings.TrimSpace(content)
		}
	}

	if payload, ok := findJSON(candidate); ok {
		return payload, true
	}
	return findJSON(trimmed)
}

func findJSON(input string) (string, bool) {
	start := strings.IndexAny(input, "[{")
	if start < 0 {
		return "", false
	}
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(input); i++ {
		ch := input[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '[', '{':
			stack = append(stack, ch)
		case ']', '}':
			if len(stack) == 0 {
				return "", false
			}
			open := stack[len(stack)-1]
			if (open == '[') != (ch == ']') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return input[start : i+1], true
			}
		}
	}
	return "", false
}
