// Package graph renders stage catalogs as Mermaid flowcharts for
// documentation and debugging.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/veloir/stagehand/pkg/domain"
)

// Overlay contains dynamic thread data to visualize on the graph.
type Overlay struct {
	VisitedStages []string
	CurrentStage  string
}

// GenerateMermaid produces Mermaid flowchart syntax from a catalog.
// Semantic styling:
//   - Entry stage: ((Circle))
//   - Terminal stage: [[Subroutine]]
//   - Default: [Rectangle]
//
// Guard expressions become edge labels; an overlay highlights visited
// and current stages of a live thread.
func GenerateMermaid(catalog domain.Catalog, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	ids := catalog.IDs()
	sort.Strings(ids)

	for _, id := range ids {
		stage := catalog.Stages[id]
		safeID := sanitizeMermaidID(id)

		opener, closer := "[", "]"
		switch {
		case id == catalog.EntryStageID:
			opener, closer = "((", "))"
		case stage.Terminal():
			opener, closer = "[[", "]]"
		}

		label := stage.Name
		if label == "" {
			label = id
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		for _, tr := range stage.Transitions {
			safeTo := sanitizeMermaidID(tr.To)
			arrow := "-->"
			if tr.Guard != "" {
				// Escape double quotes in guards for Mermaid labels.
				safeGuard := strings.ReplaceAll(tr.Guard, "\"", "'")
				arrow = fmt.Sprintf("-- \"%s\" -->", safeGuard)
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, safeTo))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for contrast regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedStages {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentStage != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentStage)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
