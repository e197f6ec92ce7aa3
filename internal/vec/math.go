package vec

// FloorDiv делит с округлением к минус бесконечности.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FloorMod возвращает остаток того же знака, что и делитель.
func FloorMod(a, b int) int {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

// CeilDiv делит с округлением вверх.
func CeilDiv(a, b int) int {
	return -FloorDiv(-a, b)
}

// Abs возвращает модуль числа
func Abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

// GCD: алгоритм Евклида.
func GCD(a, b int) int {
	a, b = Abs(a), Abs(b)
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// LCM возвращает наименьшее общее кратное; LCM(0, b) == b.
func LCM(a, b int) int {
	a, b = Abs(a), Abs(b)
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	return a / GCD(a, b) * b
}
