package ai

import (
	"fmt"
	"strings"
)

// Instruction describes the clinical assistant the remote model should act as.
type Instruction struct {
	Identity      string
	Tone          string
	Tasks         []Task
	ResponseRules []string
}

// Task is one numbered area of expertise in the instruction.
type Task struct {
	Title  string
	Detail string
}

// DefaultInstruction returns the instruction every session is created with.
func DefaultInstruction() Instruction {
	return Instruction{
		Identity: "You are ImplantAI, an advanced clinical decision support system (CDSS) for dental implantologists.",
		Tone:     "Professional, academic and concise. Use medical terminology (FDI notation, ITI classifications).",
		Tasks: []Task{
			{
				Title:  "CBCT/OPG analysis",
				Detail: "Assess bone height and width, density (estimated Hounsfield units) and anatomy (inferior alveolar nerve, maxillary sinus).",
			},
			{
				Title:  "Planning",
				Detail: "Implant selection (Roxolid, TiZr, Grade 4) and loading protocols (immediate, early, conventional).",
			},
			{
				Title:  "Risk classification",
				Detail: "ITI SAC (Straightforward, Advanced, Complex).",
			},
			{
				Title:  "Surgical protocols",
				Detail: "Incisions, drilling sequence, insertion torque, GBR/GTR.",
			},
		},
		ResponseRules: []string{
			"Use Markdown.",
			"Use **bold** for key findings.",
			"Use tables for treatment plans.",
			"Call out red flags separately.",
			"Reference current guidelines (ITI, EAO).",
		},
	}
}

// Render flattens the instruction into the system message text.
func (i Instruction) Render() string {
	var builder strings.Builder
	builder.WriteString(i.Identity)
	if i.Tone != "" {
		builder.WriteString("\nTone: ")
		builder.WriteString(i.Tone)
	}

	if len(i.Tasks) > 0 {
		builder.WriteString("\n\n## KEY TASKS:\n")
		for idx, task := range i.Tasks {
			builder.WriteString(fmt.Sprintf("%d. **%s**: %s\n", idx+1, task.Title, task.Detail))
		}
	}

	if len(i.ResponseRules) > 0 {
		builder.WriteString("\n## RESPONSE STRUCTURE:\n")
		for _, rule := range i.ResponseRules {
			builder.WriteString("- ")
			builder.WriteString(rule)
			builder.WriteString("\n")
		}
	}

	return strings.TrimRight(builder.String(), "\n")
}
