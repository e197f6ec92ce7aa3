package prediction

// Unwrap восстанавливает полное время по 16-битному значению с провода:
// результат сравним с wire по модулю 65536 и лежит в [local-32768, local+32767]
// (при равноудалённости выбирается более раннее значение).
func Unwrap(local int64, wire uint16) int64 {
	return local + int64(int16(wire-uint16(local)))
}

// Truncate обрезает время до 16 бит для передачи
func Truncate(t int64) uint16 {
	return uint16(t)
}
