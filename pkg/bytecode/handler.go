package bytecode

// ExceptionHandler is one entry of a method's exception table. Entries are
// kept in declaration order, which is also the order the JVM searches them.
type ExceptionHandler struct {
	StartBCI   int    // first covered bci
	EndBCI     int    // first bci past the covered range
	HandlerBCI int    // entry point of the handler
	CatchType  string // internal class name, empty for a catch-all handler
}

// Covers reports whether bci lies in the handler's protected range.
func (h ExceptionHandler) Covers(bci int) bool {
	return h.StartBCI <= bci && bci < h.EndBCI
}

// IsCatchAll reports whether the handler catches every exception type.
func (h ExceptionHandler) IsCatchAll() bool {
	return h.CatchType == ""
}
