package chatproto

// helpText is the fixed reply to the "help" command. The exact copy is an
// implementation decision; see DESIGN.md.
const helpText = "Available commands:\n" +
	"  /online - list everyone currently connected.\n" +
	"  /help   - show this listing."
