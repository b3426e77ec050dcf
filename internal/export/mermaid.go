package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/scamshield/internal/orchestrator"
	"github.com/dusk-indust/scamshield/internal/state"
)

// statusClasses maps slot statuses to Mermaid class definitions.
var statusClasses = []struct {
	status state.Status
	style  string
}{
	{state.StatusPending, "fill:#eeeeee,stroke:#999999"},
	{state.StatusInProgress, "fill:#fff3bf,stroke:#f59f00"},
	{state.StatusCompleted, "fill:#d3f9d8,stroke:#2b8a3e"},
	{state.StatusFailed, "fill:#ffe3e3,stroke:#c92a2a"},
	{state.StatusAwaitingReview, "fill:#d0ebff,stroke:#1c7ed6"},
}

// GenerateMermaid produces a Mermaid flowchart of the stage graph. Edges
// point from a dependency to the stage that needs it; the verification
// gate is labelled. With a non-nil st every node is classed by its slot
// status.
func GenerateMermaid(st *state.PipelineState) string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	for _, name := range state.StageNames() {
		label := string(name)
		if st != nil {
			label = fmt.Sprintf("%s<br/>%s", name, st.Status(name))
		}
		fmt.Fprintf(&sb, "  %s[\"%s\"]\n", name, label)
	}

	for _, name := range state.StageNames() {
		for _, p := range orchestrator.Prerequisites(name) {
			if p.Gate {
				fmt.Fprintf(&sb, "  %s -- verified --> %s\n", p.Stage, name)
				continue
			}
			fmt.Fprintf(&sb, "  %s --> %s\n", p.Stage, name)
		}
	}

	if st == nil {
		return sb.String()
	}

	for _, c := range statusClasses {
		fmt.Fprintf(&sb, "  classDef %s %s\n", c.status, c.style)
	}
	for _, name := range state.StageNames() {
		fmt.Fprintf(&sb, "  class %s %s\n", name, st.Status(name))
	}
	return sb.String()
}
