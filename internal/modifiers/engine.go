package modifiers

// line carries whether an Expand produced it; expanded lines are never
// placeholders for a later Expand.
type line struct {
	Item
	expanded bool
}

// Apply builds the effective recipe from base and behaviors. Behaviors run in
// three phases (Replace/Expand, Add, Scale), keeping input order inside each
// phase. base is not modified.
func Apply(base []Item, behaviors []Behavior) []Item {
	lines := make([]line, len(base))
	for i, it := range base {
		lines[i] = line{Item: it}
	}

	phases := [][]Kind{{KindReplace, KindExpand}, {KindAdd}, {KindScale}}
	for _, kinds := range phases {
		for _, b := range behaviors {
			if b == nil || !hasKind(kinds, b.Kind()) {
				continue
			}
			lines = applyBehavior(lines, b)
		}
	}
	return unwrap(lines)
}

// ApplyBehavior applies a single behavior to items and returns the new list.
func ApplyBehavior(items []Item, b Behavior) []Item {
	lines := make([]line, len(items))
	for i, it := range items {
		lines[i] = line{Item: it}
	}
	return unwrap(applyBehavior(lines, b))
}

func applyBehavior(lines []line, b Behavior) []line {
	out := make([]line, len(lines), len(lines)+1)
	copy(out, lines)

	switch v := b.(type) {
	case Add:
		return append(out, line{Item: v.Item})

	case Replace:
		for i := range out {
			if !v.Target.Matches(out[i].Item) {
				continue
			}
			with := v.With
			if with.Quantity.IsZero() {
				with.Quantity = out[i].Quantity
			}
			if with.Unit == "" {
				with.Unit = out[i].Unit
			}
			out[i] = line{Item: with}
			return out
		}
		return append(out, line{Item: v.With})

	case Scale:
		for i := range out {
			if v.Target.Matches(out[i].Item) {
				out[i].Quantity = out[i].Quantity.Mul(v.Factor)
			}
		}
		return out

	case Expand:
		produced := make([]line, len(v.Into))
		for i, it := range v.Into {
			produced[i] = line{Item: it, expanded: true}
		}
		if !v.Placeholder.Empty() {
			for i := range out {
				if out[i].expanded || !v.Placeholder.Matches(out[i].Item) {
					continue
				}
				result := make([]line, 0, len(out)-1+len(produced))
				result = append(result, out[:i]...)
				result = append(result, produced...)
				return append(result, out[i+1:]...)
			}
		}
		return append(out, produced...)
	}
	return out
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, kk := range kinds {
		if kk == k {
			return true
		}
	}
	return false
}

func unwrap(lines []line) []Item {
	items := make([]Item, len(lines))
	for i, l := range lines {
		items[i] = l.Item
	}
	return items
}
