package planner

import "strings"

// ParseSubtasks decodes the ordered sub-task list embedded in a task note.
// Each non-blank line loses at most one leading "- " and is trimmed; blank
// results are dropped. Order is preserved, duplicates allowed.
func ParseSubtasks(note string) []string {
	if note == "" {
		return nil
	}
	var subtasks []string
	for _, line := range strings.Split(note, "\n") {
		item := strings.TrimSpace(strings.TrimPrefix(line, "- "))
		if item != "" {
			subtasks = append(subtasks, item)
		}
	}
	return subtasks
}

// ComposeSubtasks is the inverse of ParseSubtasks: one "- item" line per
// non-blank entry.
func ComposeSubtasks(subtasks []string) string {
	lines := make([]string, 0, len(subtasks))
	for _, item := range subtasks {
		item = strings.TrimSpace(item)
		if item != "" {
			lines = append(lines, "- "+item)
		}
	}
	return strings.Join(lines, "\n")
}
