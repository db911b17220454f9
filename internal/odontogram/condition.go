// Package odontogram derives the per-tooth display status of a patient's
// dental chart from the flat history of dental records.
package odontogram

// Condition is a tooth condition from the closed charting vocabulary. Resolved
// statuses use the same type.
type Condition string

const (
	Healthy     Condition = "healthy"
	Caries      Condition = "caries"
	Restoration Condition = "restoration"
	Extraction  Condition = "extraction"
	RootCanal   Condition = "root_canal"
	Crown       Condition = "crown"
	Impacted    Condition = "impacted"
	Missing     Condition = "missing"
)

const unknownColor = "#ffffff"

// vocabulary keeps color and label in one row per condition, in legend order.
var vocabulary = []struct {
	condition Condition
	color     string
	label     string
}{
	{Healthy, "#90ee90", "Sano"},
	{Caries, "#a52a2a", "Caries"},
	{Restoration, "#ffd700", "Restauración"},
	{Extraction, "#000000", "Extraído"},
	{RootCanal, "#800080", "Endodoncia"},
	{Crown, "#c0c0c0", "Corona"},
	{Impacted, "#696969", "Impactado"},
	{Missing, "#ffffff", "Faltante"},
}

var byCondition = func() map[Condition]int {
	m := make(map[Condition]int, len(vocabulary))
	for i, v := range vocabulary {
		m[v.condition] = i
	}
	return m
}()

// Conditions lists the vocabulary in legend order.
func Conditions() []Condition {
	out := make([]Condition, len(vocabulary))
	for i, v := range vocabulary {
		out[i] = v.condition
	}
	return out
}

func (c Condition) Valid() bool {
	_, ok := byCondition[c]
	return ok
}

// Color is the chart fill for c; unknown conditions render white.
func (c Condition) Color() string {
	if i, ok := byCondition[c]; ok {
		return vocabulary[i].color
	}
	return unknownColor
}

// Label is the Spanish display name; unknown conditions show the raw value.
func (c Condition) Label() string {
	if i, ok := byCondition[c]; ok {
		return vocabulary[i].label
	}
	return string(c)
}

// StatusLabel renders the tooltip line for a resolved status.
func StatusLabel(status Condition) string {
	if status == Healthy {
		return "Estado: Sano"
	}
	return "Estado: " + status.Label()
}
