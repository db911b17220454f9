package odontogram

const (
	ArchUpper = "upper"
	ArchLower = "lower"
)

var upperTeeth = []int{18, 17, 16, 15, 14, 13, 12, 11, 21, 22, 23, 24, 25, 26, 27, 28}
var lowerTeeth = []int{48, 47, 46, 45, 44, 43, 42, 41, 31, 32, 33, 34, 35, 36, 37, 38}

// ToothStatus is one cell of the rendered chart.
type ToothStatus struct {
	Number   int       `json:"number"`
	Name     string    `json:"name"`
	Arch     string    `json:"arch"`
	Status   Condition `json:"status"`
	Color    string    `json:"color"`
	Label    string    `json:"label"`
	Records  int       `json:"records"`
	Multiple bool      `json:"multiple"`
}

type LegendItem struct {
	Condition Condition `json:"condition"`
	Color     string    `json:"color"`
	Label     string    `json:"label"`
}

type Chart struct {
	Teeth  []ToothStatus `json:"teeth"`
	Legend []LegendItem  `json:"legend"`
}

// ToothNumbers returns the 32 permanent teeth in display order, upper arch first.
func ToothNumbers() []int {
	out := make([]int, 0, len(upperTeeth)+len(lowerTeeth))
	out = append(out, upperTeeth...)
	return append(out, lowerTeeth...)
}

// ValidTooth reports whether n is a permanent tooth in FDI notation.
func ValidTooth(n int) bool {
	quadrant, position := n/10, n%10
	return quadrant >= 1 && quadrant <= 4 && position >= 1 && position <= 8
}

// Build resolves every tooth of the chart from a patient's records.
func Build(entries []Entry) Chart {
	groups := Group(entries)

	chart := Chart{Teeth: make([]ToothStatus, 0, 32)}
	add := func(numbers []int, arch string) {
		for _, n := range numbers {
			group := groups[n]
			status := ResolveEntries(group)
			chart.Teeth = append(chart.Teeth, ToothStatus{
				Number:   n,
				Name:     ToothName(n),
				Arch:     arch,
				Status:   status,
				Color:    status.Color(),
				Label:    status.Label(),
				Records:  len(group),
				Multiple: len(group) > 1,
			})
		}
	}
	add(upperTeeth, ArchUpper)
	add(lowerTeeth, ArchLower)

	for _, c := range Conditions() {
		chart.Legend = append(chart.Legend, LegendItem{Condition: c, Color: c.Color(), Label: c.Label()})
	}
	return chart
}

// Tooth returns the chart cell for n, if present.
func (c Chart) Tooth(n int) (ToothStatus, bool) {
	for _, t := range c.Teeth {
		if t.Number == n {
			return t, true
		}
	}
	return ToothStatus{}, false
}
