package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Run - интерактивный режим: каждая строка ввода - путь к договору или поисковый
// запрос по последнему разобранному договору
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer, opts ParseOptions) error {
	a.log.Info("Application started")
	fmt.Fprintln(out, "Enter a contract path to parse or text to search the last contract. Ctrl+C to exit.")

	scanner := bufio.NewScanner(in)

	// Увеличим буфер, если пути/строки будут длинные
	const maxLineSize = 1024 * 1024
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	var lastDocID string
	for {
		select {
		case <-ctx.Done():
			a.log.Info("Shutting down application")
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("stdin error: %w", err)
			}
			a.log.Info("stdin closed")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if info, err := os.Stat(line); err == nil && !info.IsDir() {
			if !fileCanProcess(line) {
				fmt.Fprintf(out, "❌ Unsupported format: %s\n", line)
				continue
			}
			results, err := a.ProcessFiles(ctx, []string{line}, opts)
			if err != nil {
				return err
			}
			if r := results[0]; r.Err == nil {
				lastDocID = r.DocID
				fmt.Fprintf(out, "✅ %s: %d clauses, document %s\n", line, r.Result.TotalClauses, r.DocID)
			} else {
				fmt.Fprintf(out, "❌ %v\n", r.Err)
			}
			continue
		}

		if lastDocID == "" {
			fmt.Fprintln(out, "No contract parsed yet, enter a file path first")
			continue
		}
		results, err := a.Search(ctx, lastDocID, line, 5)
		if err != nil {
			fmt.Fprintf(out, "❌ Search error: %v\n", err)
			continue
		}
		PrintSearch(out, results)
	}
}
