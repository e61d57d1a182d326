package media

// Task is one file to compress.
type Task struct {
	// Index is the position of the task in the caller's input list.
	Index       int
	Source      string
	Destination string
	Extension   string
	Kind        Kind
	// Accel reports whether a hardware video encoder may be used.
	Accel bool
	// Size is the source size in bytes captured at classification, or -1
	// when the source could not be stat'ed.
	Size int64
}
