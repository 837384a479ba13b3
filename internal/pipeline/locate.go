package pipeline

// Locate finds the element called name anywhere in h, descending through
// nested bins. A miss is not an error: it returns nil, which is also the
// result for a destroyed pipeline.
func Locate(h *Handle, name string) *ElementRef {
	if h == nil || name == "" {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.alive {
		return nil
	}
	if e := findElement(h.root, name); e != nil {
		return &ElementRef{handle: h, elem: e}
	}
	return nil
}

func findElement(e *Element, name string) *Element {
	if e.name == name {
		return e
	}
	for _, c := range e.children {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}
