package layout

// sortTypes orders Types so every by-value dependency precedes its
// containers. Containment is a partial order, which rules out
// sort.Slice: unrelated pairs compare false both ways and a comparison
// sort may never visit the pair that matters. Pairwise swaps to a
// fixpoint handle it.
func (s *Set) sortTypes() {
	for {
		fixpoint := true
		for i := 0; i < len(s.Types); i++ {
			for j := i + 1; j < len(s.Types); j++ {
				if s.dependsOn(s.Types[i].Name, s.Types[j].Name) {
					s.Types[i], s.Types[j] = s.Types[j], s.Types[i]
					fixpoint = false
					j = i
				}
			}
		}
		if fixpoint {
			return
		}
	}
}

// dependsOn reports whether container embeds dep by value, directly or
// through nested records. Pointer members do not require the pointee's
// definition and are skipped; array layers peel.
func (s *Set) dependsOn(container, dep string) bool {
	tl := s.byName[container]
	if tl == nil {
		return false
	}
	rec := tl.Guest
	if rec == nil {
		rec = tl.Host
	}
	if rec == nil {
		return false
	}
	for i := range rec.Members {
		for _, name := range valueDeps(rec.Members[i].Canon) {
			if name == dep || s.dependsOn(name, dep) {
				return true
			}
		}
	}
	return false
}
