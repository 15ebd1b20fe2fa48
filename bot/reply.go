package bot

// Reply is the outcome of dispatching one inbound message: one or more
// lines of text, each delivered as its own send call, in order. An empty
// reply means nothing is sent.
type Reply struct {
	lines []string
}

func SingleReply(text string) Reply {
	return Reply{lines: []string{text}}
}

func MultiReply(lines ...string) Reply {
	out := make([]string, len(lines))
	copy(out, lines)
	return Reply{lines: out}
}

func (r Reply) Lines() []string { return r.lines }

func (r Reply) Empty() bool { return len(r.lines) == 0 }
