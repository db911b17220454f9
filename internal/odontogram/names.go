package odontogram

import "fmt"

var toothNames = map[int]string{
	11: "Incisivo Central Sup. Derecho",
	12: "Incisivo Lateral Sup. Derecho",
	13: "Canino Sup. Derecho",
	14: "Primer Premolar Sup. Derecho",
	15: "Segundo Premolar Sup. Derecho",
	16: "Primer Molar Sup. Derecho",
	17: "Segundo Molar Sup. Derecho",
	18: "Tercer Molar Sup. Derecho",
	21: "Incisivo Central Sup. Izquierdo",
	22: "Incisivo Lateral Sup. Izquierdo",
	23: "Canino Sup. Izquierdo",
	24: "Primer Premolar Sup. Izquierdo",
	25: "Segundo Premolar Sup. Izquierdo",
	26: "Primer Molar Sup. Izquierdo",
	27: "Segundo Molar Sup. Izquierdo",
	28: "Tercer Molar Sup. Izquierdo",
	31: "Incisivo Central Inf. Izquierdo",
	32: "Incisivo Lateral Inf. Izquierdo",
	33: "Canino Inf. Izquierdo",
	34: "Primer Premolar Inf. Izquierdo",
	35: "Segundo Premolar Inf. Izquierdo",
	36: "Primer Molar Inf. Izquierdo",
	37: "Segundo Molar Inf. Izquierdo",
	38: "Tercer Molar Inf. Izquierdo",
	41: "Incisivo Central Inf. Derecho",
	42: "Incisivo Lateral Inf. Derecho",
	43: "Canino Inf. Derecho",
	44: "Primer Premolar Inf. Derecho",
	45: "Segundo Premolar Inf. Derecho",
	46: "Primer Molar Inf. Derecho",
	47: "Segundo Molar Inf. Derecho",
	48: "Tercer Molar Inf. Derecho",
}

func ToothName(n int) string {
	if name, ok := toothNames[n]; ok {
		return name
	}
	return fmt.Sprintf("Diente %d", n)
}
