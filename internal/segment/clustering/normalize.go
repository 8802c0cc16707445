package clustering

// Normalize rescales every column of rows to [0, 1] using the column's min
// and max. Constant columns become 0. The input is not modified.
func Normalize(rows [][]float64) [][]float64 {
	if len(rows) == 0 {
		return [][]float64{}
	}

	width := len(rows[0])
	mins := make([]float64, width)
	maxs := make([]float64, width)
	copy(mins, rows[0])
	copy(maxs, rows[0])
	for _, row := range rows[1:] {
		for j := 0; j < width; j++ {
			if row[j] < mins[j] {
				mins[j] = row[j]
			}
			if row[j] > maxs[j] {
				maxs[j] = row[j]
			}
		}
	}

	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, width)
		for j := 0; j < width; j++ {
			span := maxs[j] - mins[j]
			if span == 0 {
				continue
			}
			scaled[j] = (row[j] - mins[j]) / span
		}
		out[i] = scaled
	}
	return out
}
