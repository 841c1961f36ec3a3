package lexical

// TermSaturation is the k1 of the term-frequency curve: each further
// occurrence of a term adds less than the previous one.
const TermSaturation = 1.2

// Field is one analyzed chunk field and its relevance weight.
type Field struct {
	Terms  Representation
	Weight float64
}

// Score rates how well fields match the positive terms of q, in [0, 1).
// Every occurrence counts through weight*tf*(k1+1)/(tf+k1) per field and the
// sum s is mapped to s/(1+s). How many chunks contain a term plays no part,
// so a term common to the whole corpus still scores.
func (q *Query) Score(fields ...Field) float64 {
	terms := q.Terms()
	if len(terms) == 0 {
		return 0
	}

	var raw float64
	for _, f := range fields {
		if f.Weight <= 0 || f.Terms.Empty() {
			continue
		}
		tf := make(map[string]int, len(f.Terms.Terms))
		for _, t := range f.Terms.Terms {
			tf[t]++
		}
		for _, t := range terms {
			if n := float64(tf[t]); n > 0 {
				raw += f.Weight * n * (TermSaturation + 1) / (n + TermSaturation)
			}
		}
	}
	return raw / (1 + raw)
}
