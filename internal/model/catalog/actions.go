package catalog

// Category groups quick actions in the UI.
type Category string

const (
	Diagnostic Category = "diagnostic"
	Surgical   Category = "surgical"
	Prosthetic Category = "prosthetic"
	General    Category = "general"
)

// QuickAction is a canned clinical prompt the clinician can submit in one step.
type QuickAction struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Prompt   string   `json:"prompt"`
	Icon     string   `json:"icon"`
	Category Category `json:"category"`
}

// ActionStore exposes quick action retrieval for HTTP handlers.
type ActionStore interface {
	List() []QuickAction
	ListByCategory(category Category) []QuickAction
	FindByID(id string) (QuickAction, bool)
}

// MemoryActionStore implements ActionStore with an in-memory slice.
type MemoryActionStore struct {
	items []QuickAction
}

// NewMemoryActionStore returns a store preloaded with the supplied actions.
func NewMemoryActionStore(items []QuickAction) *MemoryActionStore {
	return &MemoryActionStore{items: append([]QuickAction(nil), items...)}
}

// List returns every action in declaration order.
func (s *MemoryActionStore) List() []QuickAction {
	return append([]QuickAction(nil), s.items...)
}

// ListByCategory returns the actions of one category; an empty category lists all.
func (s *MemoryActionStore) ListByCategory(category Category) []QuickAction {
	if category == "" {
		return s.List()
	}
	out := make([]QuickAction, 0, len(s.items))
	for _, item := range s.items {
		if item.Category == category {
			out = append(out, item)
		}
	}
	return out
}

// FindByID looks up an action by identifier.
func (s *MemoryActionStore) FindByID(id string) (QuickAction, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return QuickAction{}, false
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case Diagnostic, Surgical, Prosthetic, General:
		return true
	}
	return false
}

// SeedActions provides the default quick actions shown next to the composer.
func SeedActions() []QuickAction {
	return []QuickAction{
		{
			ID:       "cbct_analysis",
			Label:    "CBCT slice analysis",
			Prompt:   "Analyze the provided CBCT slice. Describe: 1) Visible anatomical structures. 2) Estimated height and width of the alveolar ridge. 3) Bone density (type D1-D4). 4) Signs of pathology.",
			Icon:     "ScanEye",
			Category: Diagnostic,
		},
		{
			ID:       "sac_class",
			Label:    "SAC classification",
			Prompt:   "Based on the described situation, classify the case complexity using ITI SAC (Straightforward, Advanced, Complex). Justify the category for the surgical and prosthetic phases.",
			Icon:     "Activity",
			Category: Diagnostic,
		},
		{
			ID:       "surg_protocol",
			Label:    "Surgical protocol",
			Prompt:   "Write a step-by-step surgical protocol for this case. Include the drill sequence, recommended insertion torque, and whether bone augmentation is needed and of what type (GBR, sinus lift).",
			Icon:     "Syringe",
			Category: Surgical,
		},
		{
			ID:       "complications",
			Label:    "Complication analysis",
			Prompt:   "List the possible intraoperative and postoperative complications for this location and anatomy. How can they be prevented?",
			Icon:     "AlertTriangle",
			Category: Surgical,
		},
		{
			ID:       "loading_protocol",
			Label:    "Loading protocol",
			Prompt:   "Assess whether immediate loading is feasible in this case. Which conditions must be met (ISQ, torque)?",
			Icon:     "Clock",
			Category: Prosthetic,
		},
		{
			ID:       "patient_memo",
			Label:    "Patient memo",
			Prompt:   "Generate a professional aftercare memo for a patient after sinus lift and implant placement. Cover regimen, medication and warning symptoms.",
			Icon:     "FileText",
			Category: General,
		},
	}
}
