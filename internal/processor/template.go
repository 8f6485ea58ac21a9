package processor

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// parseTemplate splits template text into RULE-SET tasks and verbatim
// passthrough lines. Task and passthrough indices together cover every
// original line exactly once.
func parseTemplate(templateText string) ([]RuleSetTask, []string, int) {
	lines := strings.Split(templateText, "\n")
	var tasks []RuleSetTask
	passthrough := make([]string, len(lines))

	for index, rawLine := range lines {
		match := ruleSetRe.FindStringSubmatch(rawLine)
		if match == nil {
			passthrough[index] = rawLine
			continue
		}

		tasks = append(tasks, RuleSetTask{
			Index:  index,
			URL:    strings.TrimSpace(match[1]),
			Suffix: "," + strings.TrimSpace(match[2]),
		})
	}

	return tasks, passthrough, len(lines)
}

// Process expands every RULE-SET directive in templateText concurrently and
// splices the expansions back at their original line positions. Merge order
// comes from each task's recorded line index, never from fetch completion
// order, so output is deterministic. Failed fetches degrade to comment
// lines; Process itself has no failure path.
func (p *TemplateProcessor) Process(ctx context.Context, templateText string) string {
	tasks, passthrough, lineCount := parseTemplate(templateText)
	p.logger.Debug("Template parsed", "lines", lineCount, "tasks", len(tasks))

	expansions := make([][]string, len(tasks))
	sem := semaphore.NewWeighted(maxConcurrentFetches)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(slot int, t RuleSetTask) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				expansions[slot] = []string{"# RULE-SET fetch failed: " + t.URL}
				return
			}
			defer sem.Release(1)

			expansions[slot] = p.ExpandRuleSet(ctx, t)
		}(i, task)
	}
	wg.Wait()

	byIndex := make(map[int][]string, len(tasks))
	for i, task := range tasks {
		byIndex[task.Index] = expansions[i]
	}

	output := make([]string, 0, lineCount)
	for i := 0; i < lineCount; i++ {
		if expansion, ok := byIndex[i]; ok {
			output = append(output, expansion...)
			continue
		}
		output = append(output, passthrough[i])
	}

	final := DedupeLines(output)
	p.logger.Debug("Template expansion complete", "lines", len(final))
	return strings.Join(final, "\n")
}
