package changeset

// SetIDFunc replaces the file id generator for testing.
func SetIDFunc(w *Writer, fn func() string) {
	w.newID = fn
}
