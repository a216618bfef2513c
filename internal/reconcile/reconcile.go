// Package reconcile сводит клаузы батчей в итоговый список: каждый блок принадлежит
// ровно одной клаузе, потерянные блоки восстанавливаются, дубликаты схлопываются.
package reconcile

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"clause_lens/internal/chunker"
	"clause_lens/internal/clause"
)

// OrphanConfidence - уверенность клаузы, восстановленной из непокрытого блока
const OrphanConfidence = 0.2

// BatchReport - что произошло с клаузами одного батча
type BatchReport struct {
	Accepted      int // клаузы, вошедшие в результат
	Skipped       int // повтор уже обработанного набора блоков
	DroppedClaims int // блоки, уже занятые другой клаузой
	DroppedEmpty  int // клаузы, оставшиеся без блоков
	Orphans       int // восстановленные блоки
	Duplicates    int // клаузы, поглощённые по хешу текста
}

// Accumulator хранит состояние сверки между батчами одного документа.
// Не потокобезопасен: один документ - один аккумулятор
type Accumulator struct {
	heading   func(string) (chunker.Heading, bool)
	blocks    map[string]chunker.Block
	processed map[string]bool
	owner     map[string]int // id блока -> индекс клаузы
	hashes    map[string][]int // хеш начала текста -> индексы клауз
	clauses   []clause.Clause
	lastBlock string
	recovered int
}

func NewAccumulator(heading func(string) (chunker.Heading, bool)) *Accumulator {
	return &Accumulator{
		heading:   heading,
		blocks:    make(map[string]chunker.Block),
		processed: make(map[string]bool),
		owner:     make(map[string]int),
		hashes:    make(map[string][]int),
	}
}

// Reconcile принимает клаузы одного батча
func (a *Accumulator) Reconcile(batch []chunker.Block, clauses []clause.Clause) BatchReport {
	var report BatchReport
	inBatch := make(map[string]bool, len(batch))
	for _, b := range batch {
		a.blocks[b.ID] = b
		inBatch[b.ID] = true
	}

	claimed := make(map[string]bool)
	var fresh []clause.Clause
	for _, c := range clauses {
		key := setKey(c.SourceBlockIDs)
		if a.processed[key] {
			report.Skipped++
			continue
		}
		a.processed[key] = true

		kept := lo.Filter(lo.Uniq(c.SourceBlockIDs), func(id string, _ int) bool {
			return inBatch[id] && !claimed[id] && !a.isOwned(id)
		})
		report.DroppedClaims += len(c.SourceBlockIDs) - len(kept)
		if len(kept) == 0 {
			report.DroppedEmpty++
			continue
		}
		if len(kept) != len(c.SourceBlockIDs) {
			c.Text = a.stitch(kept)
		}
		c.SourceBlockIDs = a.sortIDs(kept)
		for _, id := range kept {
			claimed[id] = true
		}
		fresh = append(fresh, c)
	}

	// непокрытые блоки
	for i, b := range batch {
		if claimed[b.ID] || a.isOwned(b.ID) {
			continue
		}
		if strings.TrimSpace(b.Text) == "" {
			prev := a.lastBlock
			if i > 0 {
				prev = batch[i-1].ID
			}
			if idx, ok := findOwner(fresh, prev); ok {
				fresh[idx].SourceBlockIDs = append(fresh[idx].SourceBlockIDs, b.ID)
				claimed[b.ID] = true
				continue
			}
			if idx, ok := a.owner[prev]; ok {
				a.attach(idx, b.ID)
				continue
			}
		}
		orphan := clause.Clause{
			Text:           b.Text,
			Type:           clause.TypeParagraph,
			SourceBlockIDs: []string{b.ID},
			Confidence:     OrphanConfidence,
			Recovered:      true,
			RecoveryReason: clause.ReasonOrphanedBlock,
		}
		if a.heading != nil {
			if h, ok := a.heading(b.Text); ok {
				orphan.Title, orphan.Number, orphan.Type = h.Title, h.Number, clause.ParseType(h.Type)
			}
		}
		claimed[b.ID] = true
		fresh = append(fresh, orphan)
		report.Orphans++
		a.recovered++
	}

	slices.SortStableFunc(fresh, func(x, y clause.Clause) int {
		return a.firstIndex(x) - a.firstIndex(y)
	})

	for _, c := range fresh {
		hash := clause.NormalizedHash(c.Text)
		if idx, ok := a.duplicateOf(hash, c.Text); ok {
			for _, id := range c.SourceBlockIDs {
				a.attach(idx, id)
			}
			report.Duplicates++
			continue
		}
		idx := len(a.clauses)
		a.clauses = append(a.clauses, c)
		a.hashes[hash] = append(a.hashes[hash], idx)
		for _, id := range c.SourceBlockIDs {
			a.owner[id] = idx
		}
		report.Accepted++
	}

	if len(batch) > 0 {
		a.lastBlock = batch[len(batch)-1].ID
	}
	return report
}

// Finalize возвращает клаузы в порядке документа с идентификаторами c1..cn
func (a *Accumulator) Finalize() []clause.Clause {
	out := slices.Clone(a.clauses)
	slices.SortStableFunc(out, func(x, y clause.Clause) int {
		return a.firstIndex(x) - a.firstIndex(y)
	})
	for i := range out {
		out[i].ID = clause.ID(i)
		out[i].SourceBlockIDs = slices.Clone(out[i].SourceBlockIDs)
		out[i].TextHash = clause.ShortHash(out[i].Text)
	}
	return out
}

// Recovered - число блоков, восстановленных как отдельные клаузы
func (a *Accumulator) Recovered() int {
	return a.recovered
}

// Covered - все ли переданные блоки принадлежат какой-либо клаузе
func (a *Accumulator) Covered(blocks []chunker.Block) bool {
	return lo.EveryBy(blocks, func(b chunker.Block) bool {
		return a.isOwned(b.ID)
	})
}

// duplicateOf ищет принятую клаузу с тем же текстом. Хеш покрывает только начало текста,
// поэтому совпадение хеша проверяется сравнением целиком
func (a *Accumulator) duplicateOf(hash, text string) (int, bool) {
	for _, idx := range a.hashes[hash] {
		if clause.SameText(a.clauses[idx].Text, text) {
			return idx, true
		}
	}
	return -1, false
}

func (a *Accumulator) isOwned(id string) bool {
	_, ok := a.owner[id]
	return ok
}

func (a *Accumulator) attach(idx int, id string) {
	c := &a.clauses[idx]
	if slices.Contains(c.SourceBlockIDs, id) {
		return
	}
	c.SourceBlockIDs = a.sortIDs(append(c.SourceBlockIDs, id))
	a.owner[id] = idx
}

func (a *Accumulator) stitch(ids []string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range a.sortIDs(ids) {
		parts = append(parts, a.blocks[id].Text)
	}
	return strings.Join(parts, "\n\n")
}

func (a *Accumulator) sortIDs(ids []string) []string {
	slices.SortStableFunc(ids, func(x, y string) int {
		return a.blocks[x].Index - a.blocks[y].Index
	})
	return ids
}

func (a *Accumulator) firstIndex(c clause.Clause) int {
	if len(c.SourceBlockIDs) == 0 {
		return 0
	}
	return a.blocks[c.SourceBlockIDs[0]].Index
}

func findOwner(clauses []clause.Clause, blockID string) (int, bool) {
	for i, c := range clauses {
		if slices.Contains(c.SourceBlockIDs, blockID) {
			return i, true
		}
	}
	return -1, false
}

func setKey(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return strings.Join(lo.Uniq(sorted), ",")
}
