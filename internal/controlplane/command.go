package controlplane

import "strings"

// ShutdownKeyword is the command line that requests a cascading shutdown.
// It is also the mailbox payload the supervisor reacts to.
const ShutdownKeyword = "shutdown"

// Kind discriminates control-plane commands.
type Kind int

const (
	Unknown Kind = iota
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Command is one decoded control-plane line. Raw holds the line without its
// terminator.
type Command struct {
	Kind Kind
	Raw  string
}

// Parse decodes a received line. Matching is exact after trimming surrounding
// whitespace and the line terminator.
func Parse(line string) Command {
	raw := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(raw) == ShutdownKeyword {
		return Command{Kind: Shutdown, Raw: raw}
	}
	return Command{Kind: Unknown, Raw: raw}
}
