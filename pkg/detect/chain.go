package detect

// source is one entry in a fallback chain.
type source[T any] struct {
	name  string
	probe func() T
}

// first probes sources in order and returns the first value accept
// approves, along with the name of the source that produced it. Sources
// after the winner are never probed.
func first[T any](sources []source[T], accept func(T) bool) (T, string, bool) {
	for _, s := range sources {
		if v := s.probe(); accept(v) {
			return v, s.name, true
		}
	}
	var zero T
	return zero, "", false
}

func nonEmpty(s string) bool {
	return s != ""
}
