package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/larkclaw/larkclaw/pkg/logger"
)

// LoadSkills reads every *.md file under dir and folds them into one
// "## Skills" prompt section, each file becoming a "### Skill: <name>"
// block named after its filename. Returns "" when the directory is
// missing or holds no skill files.
func LoadSkills(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("## Skills\n\n")
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.WarnCF("agent", "Failed to read skill file", map[string]interface{}{
				"file":  name,
				"error": err.Error(),
			})
			continue
		}
		skill := strings.TrimSpace(string(data))
		if skill == "" {
			continue
		}
		title := strings.TrimSuffix(name, ".md")
		fmt.Fprintf(&b, "### Skill: %s\n\n%s\n\n", title, skill)
	}
	return strings.TrimSpace(b.String())
}
